package rtc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Iosefkan/Interviews-sub000/internal/agent"
	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

const writeWait = 10 * time.Second

// Conn is one live realtime connection. Inbound messages are handled one at a
// time in arrival order by a single worker.
type Conn struct {
	reg       *Registry
	ws        *websocket.Conn
	sessionID string
	locale    i18n.Locale

	writeMu sync.Mutex
	work    chan inbound

	closeOnce   sync.Once
	done        chan struct{}
	mu          sync.Mutex
	closeReason string
}

func newConn(r *Registry, ws *websocket.Conn, s *interview.Session) *Conn {
	depth := r.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	return &Conn{
		reg:       r,
		ws:        ws,
		sessionID: s.ID,
		locale:    s.Language,
		work:      make(chan inbound, depth),
		done:      make(chan struct{}),
	}
}

// serve runs the heartbeat and worker and reads until the connection fails.
func (c *Conn) serve() {
	pongWait := c.reg.PongWait
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.heartbeat() }()
	go func() { defer wg.Done(); c.worker() }()

	c.readLoop()
	close(c.work)
	c.close(CloseNormal, "", "client")
	wg.Wait()
}

func (c *Conn) readLoop() {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] ws read error: %v", c.sessionID, err)
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.setReason("heartbeat")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m inbound
		if err := json.Unmarshal(data, &m); err != nil {
			c.sendError(apperr.Protocol("malformed message"))
			continue
		}
		select {
		case c.work <- m:
		case <-c.done:
			return
		}
		// The enqueue may have waited behind a long turn; the client is alive.
		_ = c.ws.SetReadDeadline(time.Now().Add(c.reg.PongWait))
	}
}

func (c *Conn) heartbeat() {
	ticker := time.NewTicker(c.reg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Printf("[%s] ping failed: %v", c.sessionID, err)
				c.close(websocket.CloseGoingAway, "heartbeat failed", "heartbeat")
				return
			}
		}
	}
}

// worker stops at close. A turn already running finishes, queued messages are dropped.
func (c *Conn) worker() {
	for m := range c.work {
		select {
		case <-c.done:
			return
		default:
		}
		c.handle(m)
	}
}

func (c *Conn) handle(m inbound) {
	switch strings.ToLower(m.Type) {
	case TypeAudioData:
		frag, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil || len(frag) == 0 {
			c.send(errorMsg{Type: TypeError, Message: c.reg.Catalog.Text(c.locale, i18n.MsgErrBadAudio)})
			return
		}
		n := c.reg.Audio.Append(context.Background(), c.sessionID, frag)
		c.reg.Metrics.AudioReceived(n)
		c.send(audioReceivedMsg{Type: TypeAudioReceived, Size: n, Buffered: c.reg.Audio.Pending(c.sessionID)})
	case TypeEndSpeech, TypeEndResponse:
		c.runTurn()
	case TypePing:
		c.send(signal{Type: TypePong})
	default:
		c.sendError(apperr.Protocol("unknown message type " + m.Type))
	}
}

// runTurn completes even if the client disconnects mid-turn so the transcript
// stays consistent with what the candidate said.
func (c *Conn) runTurn() {
	res, err := c.reg.Turns.ProcessTurn(context.Background(), c.sessionID, agent.Events{
		ProcessingStarted: func() { c.send(signal{Type: TypeProcessingStarted}) },
		CandidateResponse: func(text string) {
			c.send(candidateResponseMsg{Type: TypeCandidateResponse, Text: text})
		},
	})
	if err != nil {
		log.Printf("[%s] turn failed: %v", c.sessionID, err)
		c.sendError(err)
		return
	}
	c.send(aiResponseMsg{
		Type:                TypeAIResponse,
		Text:                res.Text,
		AudioURL:            res.AudioURL,
		Action:              res.Action,
		IsCandidateQuestion: res.IsCandidateQuestion,
		ShouldContinue:      res.ShouldContinue,
		QuestionIndex:       res.QuestionIndex,
		Completed:           res.Completed,
	})
	if res.Completed {
		c.close(CloseNormal, "interview completed", "completed")
	}
}

func (c *Conn) sendError(err error) {
	c.send(errorMsg{Type: TypeError, Message: c.reg.Turns.Message(err, c.locale)})
}

func (c *Conn) send(v any) {
	select {
	case <-c.done:
		return
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		log.Printf("[%s] ws write error: %v", c.sessionID, err)
	}
}

// close sends a close frame with code and reason once, then closes the socket.
// label is recorded as the close reason for metrics.
func (c *Conn) close(code int, reason, label string) {
	c.closeOnce.Do(func() {
		c.setReason(label)
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

func (c *Conn) setReason(label string) {
	c.mu.Lock()
	if c.closeReason == "" {
		c.closeReason = label
	}
	c.mu.Unlock()
}

func (c *Conn) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeReason == "" {
		return "client"
	}
	return c.closeReason
}
