// Package rtc serves the realtime interview channel over websockets.
package rtc

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Iosefkan/Interviews-sub000/internal/agent"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/invite"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
)

// Turns runs candidate turns for a session.
type Turns interface {
	ProcessTurn(ctx context.Context, sessionID string, ev agent.Events) (*agent.TurnResult, error)
	RecordConnect(ctx context.Context, sessionID string, e interview.AccessEntry) error
	Message(err error, loc i18n.Locale) string
}

// Validator authorizes a connection for a session.
type Validator interface {
	ValidateSession(ctx context.Context, sessionID, key string) (*interview.Session, error)
}

// AudioSink buffers answer fragments until the candidate stops speaking.
type AudioSink interface {
	Append(ctx context.Context, sessionID string, fragment []byte) int
	Pending(sessionID string) int
}

// Registry holds at most one live connection per session.
type Registry struct {
	Turns     Turns
	Validator Validator
	Audio     AudioSink
	Metrics   *metrics.Metrics
	Catalog   i18n.Catalog

	PingInterval time.Duration
	PongWait     time.Duration
	// QueueDepth bounds inbound messages waiting behind a running turn.
	QueueDepth int
	Upgrader   websocket.Upgrader

	regMu sync.Mutex
	mu    sync.Mutex
	conns map[string]*Conn
}

func NewRegistry(turns Turns, v Validator, audio AudioSink) *Registry {
	return &Registry{
		Turns:        turns,
		Validator:    v,
		Audio:        audio,
		Catalog:      i18n.Default,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		QueueDepth:   64,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  65536,
			WriteBufferSize: 65536,
			// Browser clients are served from other origins; access is gated by the session key.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

// Register makes c the live connection for its session. A previous connection
// is closed as superseded before c is stored.
func (r *Registry) Register(c *Conn) {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	r.mu.Lock()
	old := r.conns[c.sessionID]
	r.mu.Unlock()
	if old != nil && old != c {
		log.Printf("[%s] connection superseded", c.sessionID)
		old.close(CloseSuperseded, "superseded by new connection", "superseded")
	}

	r.mu.Lock()
	r.conns[c.sessionID] = c
	r.mu.Unlock()
}

// Unregister removes c if it is still the live connection for its session.
// Buffered audio for the session is kept so a reconnect can continue the answer.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[c.sessionID] == c {
		delete(r.conns, c.sessionID)
	}
}

// Kick closes the live connection for a session that has finished.
func (r *Registry) Kick(sessionID string, status interview.Status) {
	r.mu.Lock()
	c := r.conns[sessionID]
	r.mu.Unlock()
	if c != nil {
		c.close(CloseNormal, "interview "+string(status), "finished")
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every live connection, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down", "shutdown")
	}
}

// ServeWS upgrades the request and serves the interview protocol until the
// connection closes. Query parameters: sessionId, sessionKey.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request) {
	ws, err := r.Upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	ctx := req.Context()
	q := req.URL.Query()
	sessionID := q.Get("sessionId")

	sess, err := r.Validator.ValidateSession(ctx, sessionID, q.Get("sessionKey"))
	if err == nil && sess.Status.Terminal() {
		err = agent.ErrSessionFinished
	}
	if err != nil {
		log.Printf("[%s] ws rejected: %v", sessionID, err)
		reject(ws, rejectReason(err))
		return
	}

	c := newConn(r, ws, sess)
	if err := r.Turns.RecordConnect(ctx, sess.ID, interview.AccessEntry{
		Channel:    "ws",
		Action:     "connect",
		RemoteAddr: req.RemoteAddr,
		UserAgent:  req.UserAgent(),
	}); err != nil {
		log.Printf("[%s] record connect: %v", sess.ID, err)
	}
	r.Register(c)
	r.Metrics.ConnectionOpened()
	log.Printf("[%s] ws connected from %s", sess.ID, req.RemoteAddr)

	c.send(connectedMsg{Type: TypeConnected, SessionID: sess.ID, Status: string(sess.Status), QuestionIndex: sess.CurrentQuestionIndex})
	c.serve()

	r.Unregister(c)
	r.Metrics.ConnectionClosed(c.reason())
	log.Printf("[%s] ws disconnected (%s)", sess.ID, c.reason())
}

func rejectReason(err error) string {
	if reason, ok := invite.ReasonOf(err); ok {
		return "session invalid: " + string(reason)
	}
	if errors.Is(err, agent.ErrSessionFinished) {
		return "session invalid: finished"
	}
	return "session invalid"
}

func reject(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(CloseSessionInvalid, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}
