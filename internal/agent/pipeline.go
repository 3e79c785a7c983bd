// Package agent runs the interview turn pipeline: transcribe, evaluate, decide, synthesize.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/audio"
	"github.com/Iosefkan/Interviews-sub000/internal/dialogue"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
	"github.com/Iosefkan/Interviews-sub000/internal/store"
	"github.com/Iosefkan/Interviews-sub000/internal/transcript"
	"github.com/Iosefkan/Interviews-sub000/internal/tts"
)

var (
	// ErrEmptyTranscript is returned when speech-to-text heard nothing.
	ErrEmptyTranscript = errors.New("transcription is empty")
	// ErrSessionFinished is returned for turns on a session in a terminal status.
	ErrSessionFinished = errors.New("interview session has finished")
)

// Pipeline processes candidate turns. Turns for one session never overlap.
type Pipeline struct {
	Store    store.Store
	Audio    *audio.Assembler
	STT      Transcriber
	TTS      Synthesizer
	Dialogue Dialogue
	Catalog  i18n.Catalog
	// Archive, when set, keeps each merged answer and links it from the transcript.
	Archive  ObjectStore
	Notifier Notifier
	Metrics  *metrics.Metrics

	ModelSize string
	Emotion   tts.Emotion
	// FinalizeTimeout bounds the post-completion evaluation and notification.
	FinalizeTimeout time.Duration
	Now             func() time.Time

	locks *keyedMutex
	bg    sync.WaitGroup
}

func (p *Pipeline) init() {
	if p.locks == nil {
		p.locks = newKeyedMutex()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Catalog == nil {
		p.Catalog = i18n.Default
	}
	if p.Audio == nil {
		p.Audio = audio.NewAssembler(nil)
	}
	if p.Emotion == "" {
		p.Emotion = tts.EmotionProfessional
	}
	if p.FinalizeTimeout == 0 {
		p.FinalizeTimeout = 2 * time.Minute
	}
}

// NewPipeline fills defaults on p and returns it.
func NewPipeline(p *Pipeline) *Pipeline {
	p.init()
	return p
}

// lock serializes every mutation of one session.
func (p *Pipeline) lock(sessionID string) func() {
	return p.locks.Lock(sessionID)
}

// ProcessTurn flushes the session's buffered audio and runs the full pipeline on it.
func (p *Pipeline) ProcessTurn(ctx context.Context, sessionID string, ev Events) (*TurnResult, error) {
	unlock := p.lock(sessionID)
	defer unlock()

	sess, err := p.loadOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	merged, err := p.Audio.FlushAndMerge(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, sess, merged, ev)
}

// ProcessAudio runs the pipeline on a complete uploaded recording, bypassing the buffer.
func (p *Pipeline) ProcessAudio(ctx context.Context, sessionID string, data []byte, ev Events) (*TurnResult, error) {
	if len(data) == 0 {
		return nil, apperr.Wrap(apperr.KindNoAudio, "audio.process", audio.ErrNoAudioData)
	}
	unlock := p.lock(sessionID)
	defer unlock()

	sess, err := p.loadOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, sess, data, ev)
}

// loadOpen loads a session, applying lazy expiry. Terminal sessions are refused.
func (p *Pipeline) loadOpen(ctx context.Context, sessionID string) (*interview.Session, error) {
	sess, err := p.Store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, "session.load", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.ExpireIfDue(p.Now()) {
		p.Audio.Drop(sessionID)
		if err := p.Store.SaveSession(ctx, sess); err != nil {
			log.Printf("[%s] save expired session: %v", sessionID, err)
		}
		p.Metrics.Transition(string(interview.StatusExpired))
		log.Printf("[%s] session expired", sessionID)
	}
	if sess.Status.Terminal() {
		return nil, apperr.Wrap(apperr.KindConflict, "session.load", ErrSessionFinished)
	}
	return sess, nil
}

func (p *Pipeline) run(ctx context.Context, sess *interview.Session, merged []byte, ev Events) (*TurnResult, error) {
	id := sess.ID
	ev.processingStarted()

	heard, err := p.STT.Transcribe(ctx, merged, transcript.Options{Language: sess.Language, ModelSize: p.ModelSize})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(heard.Text)
	if text == "" {
		return nil, apperr.Wrap(apperr.KindNoAudio, "stt", ErrEmptyTranscript)
	}
	log.Printf("[%s] candidate: %q (stt %s)", id, text, heard.Latency)
	ev.candidateResponse(text)

	now := p.Now()
	wasPending := sess.Status == interview.StatusPending
	if err := sess.Activate(now); err != nil {
		return nil, apperr.Wrap(apperr.KindConflict, "session.activate", err)
	}
	if wasPending {
		p.Metrics.Transition(string(interview.StatusActive))
	}
	sess.AppendTurn(interview.Turn{
		Speaker:    interview.SpeakerCandidate,
		Content:    text,
		AudioURL:   p.archive(ctx, sess, merged),
		Timestamp:  now,
		Category:   interview.CategoryAnswer,
		Confidence: heard.Confidence,
	})
	if err := p.Store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save candidate turn: %w", err)
	}

	profile := p.profile(ctx, sess)
	in := dialogue.Input{
		Question:  sess.CurrentQuestion(),
		Answer:    text,
		Profile:   profile,
		Locale:    sess.Language,
		FollowUps: sess.FollowUps,
	}
	if sess.HasNextQuestion() {
		in.NextQuestion = sess.Questions[sess.CurrentQuestionIndex+1]
	}
	decision := p.Dialogue.Evaluate(ctx, in)

	now = p.Now()
	switch decision.Action {
	case dialogue.ActionFollowUp:
		sess.RecordFollowUp(now)
	case dialogue.ActionAdvance:
		if _, err := sess.AdvanceQuestion(now); err != nil {
			return nil, fmt.Errorf("advance question: %w", err)
		}
	case dialogue.ActionComplete:
		if err := sess.Complete(now); err != nil {
			return nil, fmt.Errorf("complete session: %w", err)
		}
		p.Metrics.Transition(string(interview.StatusCompleted))
	}
	p.Metrics.Turn(string(decision.Action))

	audioURL := p.speak(ctx, id, decision.Text, sess.Language)
	turn := interview.Turn{
		Speaker:   interview.SpeakerAI,
		Content:   decision.Text,
		Timestamp: p.Now(),
		Category:  decision.Category(),
	}
	if audioURL != nil {
		turn.AudioURL = *audioURL
	}
	sess.AppendTurn(turn)
	if err := p.Store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save interviewer turn: %w", err)
	}
	log.Printf("[%s] interviewer (%s, q%d): %q", id, decision.Action, sess.CurrentQuestionIndex, decision.Text)

	completed := sess.Status == interview.StatusCompleted
	if completed {
		p.finalize(sess.Clone(), profile)
	}
	return &TurnResult{
		CandidateText:       text,
		Text:                decision.Text,
		AudioURL:            audioURL,
		Action:              decision.Action,
		IsCandidateQuestion: decision.IsCandidateQuestion,
		ShouldContinue:      decision.ShouldContinue,
		QuestionIndex:       sess.CurrentQuestionIndex,
		Completed:           completed,
	}, nil
}

// speak synthesizes text. Failures degrade to a text-only reply.
func (p *Pipeline) speak(ctx context.Context, sessionID, text string, loc i18n.Locale) *string {
	if p.TTS == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	res, err := p.TTS.Synthesize(ctx, text, tts.Options{Language: loc, Emotion: p.Emotion})
	if err != nil {
		log.Printf("[%s] tts failed, replying with text only: %v", sessionID, err)
		return nil
	}
	if res.AudioURL == "" {
		return nil
	}
	u := res.AudioURL
	return &u
}

func (p *Pipeline) archive(ctx context.Context, sess *interview.Session, merged []byte) string {
	if p.Archive == nil {
		return ""
	}
	key := fmt.Sprintf("answers/%s/%03d.wav", sess.ID, len(sess.Transcript))
	u, err := p.Archive.Put(ctx, key, "audio/wav", merged)
	if err != nil {
		log.Printf("[%s] archive answer: %v", sess.ID, err)
		return ""
	}
	return u
}

// profile looks up the invitation owning the session. A missing record yields
// a profile carrying only the session language.
func (p *Pipeline) profile(ctx context.Context, sess *interview.Session) interview.Profile {
	if sess.SessionKey != "" {
		if c, err := p.Store.CandidateByKey(ctx, sess.SessionKey); err == nil {
			prof := c.Profile()
			prof.Language = sess.Language
			return prof
		}
	}
	return interview.Profile{Language: sess.Language}
}

// finalize runs the one-shot evaluation and completion notice in the background.
// Failures are logged and never reopen the session.
func (p *Pipeline) finalize(snapshot *interview.Session, profile interview.Profile) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.FinalizeTimeout)
		defer cancel()
		id := snapshot.ID

		if p.Dialogue != nil {
			ev, err := p.Dialogue.FinalEvaluation(ctx, snapshot, profile)
			if err != nil {
				log.Printf("[%s] final evaluation failed: %v", id, err)
			} else {
				unlock := p.lock(id)
				if sess, err := p.Store.GetSession(ctx, id); err == nil {
					sess.Evaluation = ev
					sess.UpdatedAt = p.Now()
					if err := p.Store.SaveSession(ctx, sess); err != nil {
						log.Printf("[%s] save evaluation: %v", id, err)
					}
					snapshot = sess
				}
				unlock()
				log.Printf("[%s] final evaluation: score=%.0f recommendation=%s", id, ev.OverallScore, ev.Recommendation)
			}
		}

		if p.Notifier != nil {
			var cand *interview.Candidate
			if snapshot.SessionKey != "" {
				cand, _ = p.Store.CandidateByKey(ctx, snapshot.SessionKey)
			}
			if err := p.Notifier.InterviewCompleted(ctx, snapshot, cand); err != nil {
				log.Printf("[%s] completion notice failed: %v", id, err)
			}
		}
	}()
}

// Wait blocks until background finalization has finished.
func (p *Pipeline) Wait() { p.bg.Wait() }

// Message localizes an error for the candidate.
func (p *Pipeline) Message(err error, loc i18n.Locale) string {
	id := i18n.MsgErrInternal
	switch {
	case errors.Is(err, ErrEmptyTranscript):
		id = i18n.MsgErrEmptyTranscript
	case errors.Is(err, ErrSessionFinished):
		id = i18n.MsgErrFinished
	case errors.Is(err, audio.ErrShortHeader):
		id = i18n.MsgErrBadAudio
	case apperr.Is(err, apperr.KindNoAudio):
		id = i18n.MsgErrNoAudio
	case apperr.Is(err, apperr.KindUpstream):
		id = i18n.MsgErrTranscription
	case apperr.Is(err, apperr.KindProtocol):
		id = i18n.MsgErrUnknownMessage
	}
	return p.Catalog.Text(loc, id)
}
