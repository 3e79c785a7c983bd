package agent

import (
	"context"

	"github.com/Iosefkan/Interviews-sub000/internal/dialogue"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/transcript"
	"github.com/Iosefkan/Interviews-sub000/internal/tts"
)

// Transcriber turns a merged answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts transcript.Options) (transcript.Result, error)
}

// Synthesizer renders interviewer text to a playable reference.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts tts.Options) (tts.Result, error)
}

// Dialogue is the interviewer's decision policy.
type Dialogue interface {
	Evaluate(ctx context.Context, in dialogue.Input) dialogue.Decision
	Opening(p interview.Profile, loc i18n.Locale, firstQuestion string) string
	GenerateQuestions(ctx context.Context, p interview.Profile, t interview.Type, n int, loc i18n.Locale) ([]string, error)
	FinalEvaluation(ctx context.Context, s *interview.Session, p interview.Profile) (*interview.Evaluation, error)
}

// ObjectStore archives candidate answers.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Notifier is told when an interview completes.
type Notifier interface {
	InterviewCompleted(ctx context.Context, s *interview.Session, c *interview.Candidate) error
}

// Events are pipeline progress callbacks. Nil fields are skipped.
type Events struct {
	ProcessingStarted func()
	CandidateResponse func(text string)
}

func (e Events) processingStarted() {
	if e.ProcessingStarted != nil {
		e.ProcessingStarted()
	}
}

func (e Events) candidateResponse(text string) {
	if e.CandidateResponse != nil {
		e.CandidateResponse(text)
	}
}

// TurnResult is the interviewer's reply to one candidate turn.
type TurnResult struct {
	CandidateText       string
	Text                string
	AudioURL            *string
	Action              dialogue.Action
	IsCandidateQuestion bool
	ShouldContinue      bool
	QuestionIndex       int
	Completed           bool
}
