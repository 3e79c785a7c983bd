package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/audio"
	"github.com/Iosefkan/Interviews-sub000/internal/dialogue"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/invite"
	"github.com/Iosefkan/Interviews-sub000/internal/store"
	"github.com/Iosefkan/Interviews-sub000/internal/transcript"
	"github.com/Iosefkan/Interviews-sub000/internal/tts"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeLLM answers by prompt kind. followUps is how many evaluations ask for one.
type fakeLLM struct {
	mu        sync.Mutex
	followUps int
	fail      bool
}

func (f *fakeLLM) Generate(_ context.Context, _, prompt string) (string, error) {
	if f.fail {
		return "", errors.New("llm down")
	}
	switch {
	case strings.Contains(prompt, "YES or NO"):
		return "NO", nil
	case strings.Contains(prompt, "overallScore"):
		return `{"overallScore": 70, "communication": 80, "recommendation": "hire", "summary": "ok"}`, nil
	case strings.Contains(prompt, `"questions"`):
		return `{"questions": ["generated one", "generated two"]}`, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.followUps > 0 {
		f.followUps--
		return `{"needsFollowUp": true, "followUpQuestion": "Could you give an example?"}`, nil
	}
	return `{"needsFollowUp": false}`, nil
}

type fakeSTT struct {
	mu     sync.Mutex
	texts  []string
	err    error
	delay  time.Duration
	active int32
	peak   int32
}

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, _ transcript.Options) (transcript.Result, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return transcript.Result{}, apperr.Upstream("stt", f.err)
	}
	if len(f.texts) == 0 {
		return transcript.Result{Text: "I have done that many times at work"}, nil
	}
	t := f.texts[0]
	f.texts = f.texts[1:]
	return transcript.Result{Text: t}, nil
}

type fakeTTS struct {
	fail  bool
	calls int32
}

func (f *fakeTTS) Synthesize(_ context.Context, text string, _ tts.Options) (tts.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return tts.Result{}, apperr.Upstream("tts", errors.New("tts down"))
	}
	return tts.Result{AudioURL: "https://media.example/tts.wav"}, nil
}

type fakeNotifier struct{ done chan *interview.Session }

func (f *fakeNotifier) InterviewCompleted(_ context.Context, s *interview.Session, _ *interview.Candidate) error {
	f.done <- s
	return nil
}

type fixture struct {
	svc   *Service
	store *store.Memory
	stt   *fakeSTT
	tts   *fakeTTS
	llm   *fakeLLM
	clock *clock
	note  *fakeNotifier
}

func newFixture(t *testing.T, questions ...string) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		stt:   &fakeSTT{},
		tts:   &fakeTTS{},
		llm:   &fakeLLM{},
		clock: &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		note:  &fakeNotifier{done: make(chan *interview.Session, 1)},
	}
	err := f.store.PutCandidate(context.Background(), &interview.Candidate{
		ID: "cand", Name: "Alex", Language: i18n.English, SessionKey: "key",
		InvitationExpiresAt: f.clock.Now().Add(time.Hour), Questions: questions,
	})
	if err != nil {
		t.Fatalf("put candidate: %v", err)
	}
	p := NewPipeline(&Pipeline{
		Store:    f.store,
		STT:      f.stt,
		TTS:      f.tts,
		Dialogue: dialogue.NewEngine(f.llm, nil, 1),
		Notifier: f.note,
		Now:      f.clock.Now,
	})
	f.svc = NewService(p, invite.NewValidator(f.store, f.clock.Now))
	return f
}

func (f *fixture) start(t *testing.T) *interview.Session {
	t.Helper()
	res, err := f.svc.StartPublic(context.Background(), StartRequest{SessionKey: "key", Type: interview.TypeTechnical})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return res.Session
}

func (f *fixture) say(t *testing.T, id string) (*TurnResult, error) {
	t.Helper()
	f.svc.Audio.Append(context.Background(), id, audio.EncodeWAV([]byte{1, 2, 3, 4}, 16000, 1))
	return f.svc.ProcessTurn(context.Background(), id, Events{})
}

func (f *fixture) load(t *testing.T, id string) *interview.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return s
}

func TestScenarioA_AllQuestionsWithoutFollowUps(t *testing.T) {
	f := newFixture(t, "q1", "q2", "q3")
	sess := f.start(t)
	if sess.Status != interview.StatusPending {
		t.Fatalf("new session should be pending, got %s", sess.Status)
	}
	lastIndex := 0
	for i := 0; i < 3; i++ {
		res, err := f.say(t, sess.ID)
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		if res.QuestionIndex < lastIndex {
			t.Fatalf("question index decreased: %d -> %d", lastIndex, res.QuestionIndex)
		}
		lastIndex = res.QuestionIndex
		if got := f.load(t, sess.ID).Status; i < 2 && got != interview.StatusActive {
			t.Fatalf("turn %d: status = %s", i, got)
		}
		if i == 2 && (!res.Completed || res.ShouldContinue) {
			t.Fatalf("last turn should complete: %+v", res)
		}
	}
	got := f.load(t, sess.ID)
	if got.Status != interview.StatusCompleted || got.EndTime == nil || got.StartTime == nil {
		t.Fatalf("unexpected final session %+v", got)
	}
	if len(got.Transcript) != 2*3+1 {
		t.Fatalf("transcript has %d turns, want 7", len(got.Transcript))
	}
	for i, turn := range got.Transcript {
		want := interview.SpeakerAI
		if i%2 == 1 {
			want = interview.SpeakerCandidate
		}
		if turn.Speaker != want {
			t.Fatalf("turn %d speaker = %s", i, turn.Speaker)
		}
	}
	if got.Transcript[6].Content != i18n.Default.Text(i18n.English, i18n.MsgClosing) {
		t.Fatalf("closing text = %q", got.Transcript[6].Content)
	}
	if got.CurrentQuestionIndex != 2 {
		t.Fatalf("index = %d, must not exceed last question", got.CurrentQuestionIndex)
	}

	select {
	case <-f.note.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("completion notice not sent")
	}
	f.svc.Wait()
	if ev := f.load(t, sess.ID).Evaluation; ev == nil || ev.Recommendation != "hire" {
		t.Fatalf("final evaluation not stored: %+v", ev)
	}
	if _, err := f.say(t, sess.ID); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("completed session must refuse turns, got %v", err)
	}
}

func TestScenarioB_CandidateQuestionRedirects(t *testing.T) {
	f := newFixture(t, "q1", "q2")
	sess := f.start(t)
	f.stt.texts = []string{"What is the salary?"}
	res, err := f.say(t, sess.ID)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !res.IsCandidateQuestion || res.Action != dialogue.ActionRedirect || res.QuestionIndex != 0 {
		t.Fatalf("expected redirect, got %+v", res)
	}
	if res.Text != i18n.Default.Text(i18n.English, i18n.MsgCandidateQuestion) {
		t.Fatalf("redirect text = %q", res.Text)
	}
	got := f.load(t, sess.ID)
	if got.Status != interview.StatusActive || got.CurrentQuestionIndex != 0 {
		t.Fatalf("redirect must not advance: %+v", got)
	}
}

func TestScenarioC_TranscriptionFailure(t *testing.T) {
	f := newFixture(t, "q1", "q2")
	sess := f.start(t)
	f.stt.err = errors.New("timeout")
	started := false
	f.svc.Audio.Append(context.Background(), sess.ID, audio.EncodeWAV([]byte{1, 2}, 16000, 1))
	_, err := f.svc.ProcessTurn(context.Background(), sess.ID, Events{ProcessingStarted: func() { started = true }})
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !started {
		t.Fatalf("processing_started should precede the failure")
	}
	if msg := f.svc.Message(err, i18n.English); msg != i18n.Default.Text(i18n.English, i18n.MsgErrTranscription) {
		t.Fatalf("message = %q", msg)
	}
	got := f.load(t, sess.ID)
	if got.Status != interview.StatusPending || got.CurrentQuestionIndex != 0 || len(got.Transcript) != 1 {
		t.Fatalf("state changed on stt failure: %+v", got)
	}
	if f.svc.Audio.Pending(sess.ID) != 0 {
		t.Fatalf("buffer must be cleared after submission")
	}
}

func TestScenarioD_SynthesisFailureDegrades(t *testing.T) {
	f := newFixture(t, "q1", "q2")
	sess := f.start(t)
	f.tts.fail = true
	res, err := f.say(t, sess.ID)
	if err != nil {
		t.Fatalf("tts failure must not fail the turn: %v", err)
	}
	if res.AudioURL != nil || res.Text != "q2" {
		t.Fatalf("expected text-only reply, got %+v", res)
	}
	got := f.load(t, sess.ID)
	last := got.Transcript[len(got.Transcript)-1]
	if last.Speaker != interview.SpeakerAI || last.Content != "q2" || last.AudioURL != "" {
		t.Fatalf("unexpected ai turn %+v", last)
	}
}

func TestEmptyFlushIsIdempotent(t *testing.T) {
	f := newFixture(t, "q1")
	sess := f.start(t)
	before := f.load(t, sess.ID)
	for i := 0; i < 2; i++ {
		_, err := f.svc.ProcessTurn(context.Background(), sess.ID, Events{})
		if !errors.Is(err, audio.ErrNoAudioData) || !apperr.Is(err, apperr.KindNoAudio) {
			t.Fatalf("flush %d: expected no audio, got %v", i, err)
		}
	}
	after := f.load(t, sess.ID)
	if after.Status != before.Status || len(after.Transcript) != len(before.Transcript) || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("empty flush mutated session")
	}
}

func TestEmptyTranscriptChangesNothing(t *testing.T) {
	f := newFixture(t, "q1")
	sess := f.start(t)
	f.stt.texts = []string{"   "}
	_, err := f.say(t, sess.ID)
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected empty transcript error, got %v", err)
	}
	if msg := f.svc.Message(err, i18n.Russian); msg != i18n.Default.Text(i18n.Russian, i18n.MsgErrEmptyTranscript) {
		t.Fatalf("message = %q", msg)
	}
	if got := f.load(t, sess.ID); got.Status != interview.StatusPending || len(got.Transcript) != 1 {
		t.Fatalf("state changed: %+v", got)
	}
}

func TestFollowUpDoesNotAdvance(t *testing.T) {
	f := newFixture(t, "q1", "q2")
	f.llm.followUps = 5
	sess := f.start(t)
	res, err := f.say(t, sess.ID)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Action != dialogue.ActionFollowUp || res.QuestionIndex != 0 || res.Text != "Could you give an example?" {
		t.Fatalf("expected follow-up, got %+v", res)
	}
	// one follow-up per question: the next answer advances even though the AI asks again
	res, err = f.say(t, sess.ID)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Action != dialogue.ActionAdvance || res.QuestionIndex != 1 {
		t.Fatalf("expected advance after follow-up limit, got %+v", res)
	}
	if got := f.load(t, sess.ID); got.FollowUps != 0 {
		t.Fatalf("follow-up counter should reset on advance, got %d", got.FollowUps)
	}
}

func TestAIOutageKeepsInterviewGoing(t *testing.T) {
	f := newFixture(t, "q1", "q2")
	sess := f.start(t)
	f.llm.fail = true
	res, err := f.say(t, sess.ID)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !res.ShouldContinue || res.Action != dialogue.ActionRetry || res.QuestionIndex != 0 {
		t.Fatalf("expected fallback reply, got %+v", res)
	}
	if got := f.load(t, sess.ID); got.Status != interview.StatusActive {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestLazyExpiryOnTurn(t *testing.T) {
	f := newFixture(t, "q1")
	sess := f.start(t)
	f.clock.Add(2 * time.Hour)
	_, err := f.say(t, sess.ID)
	if !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
	if got := f.load(t, sess.ID); got.Status != interview.StatusExpired {
		t.Fatalf("status = %s", got.Status)
	}
	if f.svc.Audio.Pending(sess.ID) != 0 {
		t.Fatalf("expired session should drop buffered audio")
	}
}

func TestTurnsForOneSessionAreSerialized(t *testing.T) {
	f := newFixture(t, "q1", "q2", "q3", "q4")
	sess := f.start(t)
	f.stt.delay = 20 * time.Millisecond
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ProcessAudio(context.Background(), sess.ID, audio.EncodeWAV([]byte{1, 2}, 16000, 1), Events{})
		}()
	}
	wg.Wait()
	if peak := atomic.LoadInt32(&f.stt.peak); peak != 1 {
		t.Fatalf("pipeline ran %d turns concurrently for one session", peak)
	}
	if got := f.load(t, sess.ID); len(got.Transcript) != 7 || got.CurrentQuestionIndex != 3 {
		t.Fatalf("unexpected transcript %d / index %d", len(got.Transcript), got.CurrentQuestionIndex)
	}
	if f.svc.locks.size() != 0 {
		t.Fatalf("session locks leaked")
	}
}

func TestMessageLocalizesKinds(t *testing.T) {
	f := newFixture(t)
	cases := map[i18n.MessageID]error{
		i18n.MsgErrNoAudio:        apperr.Wrap(apperr.KindNoAudio, "audio.flush", audio.ErrNoAudioData),
		i18n.MsgErrFinished:       apperr.Wrap(apperr.KindConflict, "x", ErrSessionFinished),
		i18n.MsgErrUnknownMessage: apperr.Protocol("unknown type"),
		i18n.MsgErrInternal:       errors.New("boom"),
	}
	for id, err := range cases {
		if got := f.svc.Message(err, i18n.Russian); got != i18n.Default.Text(i18n.Russian, id) {
			t.Errorf("%s: got %q", id, got)
		}
	}
}
