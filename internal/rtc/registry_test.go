package rtc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iosefkan/Interviews-sub000/internal/agent"
	"github.com/Iosefkan/Interviews-sub000/internal/dialogue"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/invite"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
)

type fakeValidator struct{}

func (fakeValidator) ValidateSession(_ context.Context, id, key string) (*interview.Session, error) {
	switch {
	case id == "done":
		return &interview.Session{ID: id, Status: interview.StatusCompleted}, nil
	case id != "s1" && id != "s2":
		return nil, &invite.Rejection{Reason: invite.ReasonNotFound}
	case key != "key":
		return nil, &invite.Rejection{Reason: invite.ReasonKeyMismatch}
	}
	return &interview.Session{ID: id, Status: interview.StatusActive, Language: i18n.English, CurrentQuestionIndex: 1}, nil
}

type fakeTurns struct {
	mu       sync.Mutex
	result   *agent.TurnResult
	err      error
	connects int
	calls    int
	// gate, when set, holds every turn after processing_started until closed.
	gate chan struct{}
}

func (f *fakeTurns) ProcessTurn(_ context.Context, _ string, ev agent.Events) (*agent.TurnResult, error) {
	f.mu.Lock()
	f.calls++
	res, err, gate := f.result, f.err, f.gate
	f.mu.Unlock()
	ev.ProcessingStarted()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	ev.CandidateResponse("my answer")
	return res, nil
}

func (f *fakeTurns) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTurns) RecordConnect(_ context.Context, _ string, _ interview.AccessEntry) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return nil
}

func (f *fakeTurns) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTurns) Message(err error, _ i18n.Locale) string { return "localized: " + err.Error() }

type fakeAudio struct {
	mu    sync.Mutex
	frags map[string]int
}

func (f *fakeAudio) Append(_ context.Context, id string, frag []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frags == nil {
		f.frags = map[string]int{}
	}
	f.frags[id]++
	return len(frag)
}

func (f *fakeAudio) Pending(id string) int { return f.count(id) }

func (f *fakeAudio) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frags[id]
}

func newTestRegistry(t *testing.T) (*Registry, *fakeTurns, *fakeAudio, string) {
	t.Helper()
	turns := &fakeTurns{result: &agent.TurnResult{Text: "next question", Action: dialogue.ActionAdvance, ShouldContinue: true, QuestionIndex: 2}}
	sink := &fakeAudio{}
	reg := NewRegistry(turns, fakeValidator{}, sink)
	srv := httptest.NewServer(http.HandlerFunc(reg.ServeWS))
	t.Cleanup(srv.Close)
	return reg, turns, sink, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, query string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/interview?"+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func expectType(t *testing.T, ws *websocket.Conn, want string) map[string]any {
	t.Helper()
	m := readJSON(t, ws)
	if m["type"] != want {
		t.Fatalf("expected %s, got %v", want, m)
	}
	return m
}

func expectClose(t *testing.T, ws *websocket.Conn, code int) *websocket.CloseError {
	t.Helper()
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close %d, got %v", code, err)
		}
		if ce.Code != code {
			t.Fatalf("close code = %d (%s), want %d", ce.Code, ce.Text, code)
		}
		return ce
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWS_RejectsInvalidSessions(t *testing.T) {
	_, _, _, base := newTestRegistry(t)
	cases := map[string]string{
		"sessionId=missing":          "session invalid: not-found",
		"sessionId=s1&sessionKey=no": "session invalid: key-mismatch",
		"sessionId=done":             "session invalid: finished",
	}
	for query, reason := range cases {
		ws := dial(t, base, query)
		ce := expectClose(t, ws, CloseSessionInvalid)
		if ce.Text != reason {
			t.Errorf("%s: reason = %q, want %q", query, ce.Text, reason)
		}
	}
}

func TestServeWS_TurnFlow(t *testing.T) {
	_, turns, sink, base := newTestRegistry(t)
	ws := dial(t, base, "sessionId=s1&sessionKey=key")

	m := expectType(t, ws, TypeConnected)
	if m["sessionId"] != "s1" || m["questionIndex"] != float64(1) {
		t.Fatalf("connected = %v", m)
	}

	frag := base64.StdEncoding.EncodeToString([]byte("RIFF...."))
	if err := ws.WriteJSON(inbound{Type: TypeAudioData, Data: frag}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m = expectType(t, ws, TypeAudioReceived)
	if m["size"] != float64(8) || m["buffered"] != float64(1) {
		t.Fatalf("audio_received = %v", m)
	}

	if err := ws.WriteJSON(inbound{Type: TypeEndSpeech}); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectType(t, ws, TypeProcessingStarted)
	if m = expectType(t, ws, TypeCandidateResponse); m["text"] != "my answer" {
		t.Fatalf("candidate_response = %v", m)
	}
	m = expectType(t, ws, TypeAIResponse)
	if v, ok := m["audioUrl"]; !ok || v != nil {
		t.Fatalf("audioUrl must be present and null, got %v", m)
	}
	if m["text"] != "next question" || m["questionIndex"] != float64(2) || m["shouldContinue"] != true {
		t.Fatalf("ai_response = %v", m)
	}

	if err := ws.WriteJSON(inbound{Type: TypePing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectType(t, ws, TypePong)

	if sink.count("s1") != 1 || turns.connectCount() != 1 {
		t.Fatalf("fragments=%d connects=%d", sink.count("s1"), turns.connectCount())
	}
}

func TestServeWS_ErrorsAreReported(t *testing.T) {
	_, turns, _, base := newTestRegistry(t)
	turns.err = errors.New("stt timeout")
	ws := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, ws, TypeConnected)

	_ = ws.WriteJSON(inbound{Type: TypeAudioData, Data: "%%%not-base64"})
	if m := expectType(t, ws, TypeError); m["message"] != i18n.Default.Text(i18n.English, i18n.MsgErrBadAudio) {
		t.Fatalf("bad audio error = %v", m)
	}

	_ = ws.WriteJSON(inbound{Type: "dance"})
	if m := expectType(t, ws, TypeError); !strings.HasPrefix(m["message"].(string), "localized: ") {
		t.Fatalf("unknown type error = %v", m)
	}

	_ = ws.WriteJSON(inbound{Type: TypeEndResponse})
	expectType(t, ws, TypeProcessingStarted)
	if m := expectType(t, ws, TypeError); m["message"] != "localized: stt timeout" {
		t.Fatalf("turn error = %v", m)
	}
}

func TestServeWS_CompletionClosesNormally(t *testing.T) {
	_, turns, _, base := newTestRegistry(t)
	url := "https://media.example/bye.wav"
	turns.result = &agent.TurnResult{Text: "Thank you", AudioURL: &url, Action: dialogue.ActionComplete, Completed: true}
	ws := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, ws, TypeConnected)

	_ = ws.WriteJSON(inbound{Type: TypeEndSpeech})
	expectType(t, ws, TypeProcessingStarted)
	expectType(t, ws, TypeCandidateResponse)
	if m := expectType(t, ws, TypeAIResponse); m["audioUrl"] != url || m["completed"] != true {
		t.Fatalf("ai_response = %v", m)
	}
	expectClose(t, ws, CloseNormal)
}

func TestRegistry_NewConnectionSupersedesOld(t *testing.T) {
	reg, _, sink, base := newTestRegistry(t)
	first := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, first, TypeConnected)
	_ = first.WriteJSON(inbound{Type: TypeAudioData, Data: base64.StdEncoding.EncodeToString([]byte("abc"))})
	expectType(t, first, TypeAudioReceived)

	second := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, second, TypeConnected)
	expectClose(t, first, CloseSuperseded)

	if reg.Count() != 1 {
		t.Fatalf("live connections = %d", reg.Count())
	}
	_ = second.WriteJSON(inbound{Type: TypeAudioData, Data: base64.StdEncoding.EncodeToString([]byte("def"))})
	if m := expectType(t, second, TypeAudioReceived); m["buffered"] != float64(2) {
		t.Fatalf("buffer should survive reconnect, got %v", m)
	}

	_ = second.Close()
	eventually(t, func() bool { return reg.Count() == 0 })
	if sink.count("s1") != 2 {
		t.Fatalf("disconnect must not drop buffered audio")
	}
}

func TestRegistry_KickAndIsolation(t *testing.T) {
	reg, _, _, base := newTestRegistry(t)
	a := dial(t, base, "sessionId=s1&sessionKey=key")
	b := dial(t, base, "sessionId=s2&sessionKey=key")
	expectType(t, a, TypeConnected)
	expectType(t, b, TypeConnected)
	eventually(t, func() bool { return reg.Count() == 2 })

	reg.Kick("s1", interview.StatusTerminated)
	if ce := expectClose(t, a, CloseNormal); ce.Text != "interview terminated" {
		t.Fatalf("reason = %q", ce.Text)
	}
	eventually(t, func() bool { return reg.Count() == 1 })

	_ = b.WriteJSON(inbound{Type: TypePing})
	expectType(t, b, TypePong)
}

func TestRegistry_HeartbeatDropsDeadConnections(t *testing.T) {
	reg, _, _, base := newTestRegistry(t)
	reg.PingInterval = 20 * time.Millisecond
	reg.PongWait = 60 * time.Millisecond

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/interview?sessionId=s1&sessionKey=key", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	eventually(t, func() bool { return reg.Count() == 1 })
	// The client never reads, so pings go unanswered.
	eventually(t, func() bool { return reg.Count() == 0 })
}

func (r *Registry) live(sessionID string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[sessionID]
}

func isClosed(c *Conn) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestRegistry_SupersededConnectionDropsQueuedMessages(t *testing.T) {
	reg, turns, sink, base := newTestRegistry(t)
	m := metrics.New("rtc_supersede")
	reg.Metrics = m
	gate := make(chan struct{})
	turns.gate = gate

	first := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, first, TypeConnected)
	_ = first.WriteJSON(inbound{Type: TypeEndSpeech})
	expectType(t, first, TypeProcessingStarted)

	// Queued behind the running turn.
	_ = first.WriteJSON(inbound{Type: TypeAudioData, Data: b64("abc")})
	_ = first.WriteJSON(inbound{Type: TypeEndSpeech})
	old := reg.live("s1")
	eventually(t, func() bool { return len(old.work) == 2 })

	second := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, second, TypeConnected)
	expectClose(t, first, CloseSuperseded)

	close(gate)
	eventually(t, func() bool { return testutil.ToFloat64(m.ConnectionsActive) == 1 })

	if n := turns.callCount(); n != 1 {
		t.Fatalf("closed connection ran %d turns, want only the one in flight", n)
	}
	if n := sink.count("s1"); n != 0 {
		t.Fatalf("closed connection appended %d fragments", n)
	}
	_ = second.WriteJSON(inbound{Type: TypePing})
	expectType(t, second, TypePong)
}

func TestRegistry_LongTurnDoesNotTripReadDeadline(t *testing.T) {
	reg, turns, _, base := newTestRegistry(t)
	reg.PingInterval = time.Hour
	reg.PongWait = 100 * time.Millisecond
	reg.QueueDepth = 1
	gate := make(chan struct{})
	turns.gate = gate

	ws := dial(t, base, "sessionId=s1&sessionKey=key")
	expectType(t, ws, TypeConnected)
	_ = ws.WriteJSON(inbound{Type: TypeEndSpeech})
	expectType(t, ws, TypeProcessingStarted)

	// One ping fills the queue, the next blocks the reader past the deadline.
	for i := 0; i < 3; i++ {
		_ = ws.WriteJSON(inbound{Type: TypePing})
	}
	time.Sleep(250 * time.Millisecond)
	close(gate)

	expectType(t, ws, TypeCandidateResponse)
	expectType(t, ws, TypeAIResponse)
	for i := 0; i < 3; i++ {
		expectType(t, ws, TypePong)
	}
	_ = ws.WriteJSON(inbound{Type: TypePing})
	expectType(t, ws, TypePong)
	if reg.Count() != 1 {
		t.Fatalf("healthy connection was dropped")
	}
}

// serverSockets returns n server-side websockets, each with a live client.
func serverSockets(t *testing.T, n int) []*websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, n)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	out := make([]*websocket.Conn, 0, n)
	for i := 0; i < n; i++ {
		client, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { _ = client.Close() })
		ws := <-accepted
		t.Cleanup(func() { _ = ws.Close() })
		out = append(out, ws)
	}
	return out
}

func TestRegistry_RegisterClosesOldBeforeStoringNew(t *testing.T) {
	reg := NewRegistry(&fakeTurns{}, fakeValidator{}, &fakeAudio{})
	sess := &interview.Session{ID: "s1", Language: i18n.English}
	sockets := serverSockets(t, 8)
	conns := make([]*Conn, len(sockets))
	for i, ws := range sockets {
		conns[i] = newConn(reg, ws, sess)
	}

	reg.Register(conns[0])
	reg.Register(conns[1])
	if !isClosed(conns[0]) || reg.live("s1") != conns[1] {
		t.Fatalf("old connection must be closed and replaced")
	}

	var wg sync.WaitGroup
	for _, c := range conns[2:] {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			reg.Register(c)
		}(c)
	}
	wg.Wait()

	winner := reg.live("s1")
	open := 0
	for _, c := range conns {
		if !isClosed(c) {
			open++
			if c != winner {
				t.Fatalf("an unregistered connection was left open")
			}
		}
	}
	if open != 1 {
		t.Fatalf("open connections for one session = %d, want 1", open)
	}
}
