// Package interview holds the interview session aggregate and its state machine.
package interview

import (
	"errors"
	"fmt"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
	StatusExpired    Status = "expired"
	// StatusError is reserved. No transition in this package produces it.
	StatusError Status = "error"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusExpired, StatusError:
		return true
	}
	return false
}

// Type is the interview flavor used when preparing questions.
type Type string

const (
	TypeTechnical  Type = "technical"
	TypeBehavioral Type = "behavioral"
	TypeMixed      Type = "mixed"
)

// ParseType normalizes a requested interview type, defaulting to mixed.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeTechnical, TypeBehavioral:
		return Type(s)
	}
	return TypeMixed
}

// Speaker identifies the author of a turn.
type Speaker string

const (
	SpeakerAI        Speaker = "ai"
	SpeakerCandidate Speaker = "candidate"
)

// Turn is one immutable transcript entry.
type Turn struct {
	Speaker    Speaker   `json:"speaker"`
	Content    string    `json:"content"`
	AudioURL   string    `json:"audioUrl,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Category   string    `json:"category,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Turn categories.
const (
	CategoryQuestion          = "question"
	CategoryFollowUp          = "follow_up"
	CategoryAnswer            = "answer"
	CategoryCandidateQuestion = "candidate_question"
	CategoryRedirect          = "redirect"
	CategoryClosing           = "closing"
)

// Settings bound the interview.
type Settings struct {
	MaxQuestions int `json:"maxQuestions"`
	// TimeLimit in minutes.
	TimeLimit int `json:"timeLimit"`
}

// AccessEntry is one audit record of a granted access.
type AccessEntry struct {
	At         time.Time `json:"at"`
	Channel    string    `json:"channel"`
	Action     string    `json:"action"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}

// Evaluation is the aggregate assessment produced after completion.
type Evaluation struct {
	OverallScore   float64            `json:"overallScore"`
	Skills         map[string]float64 `json:"skills,omitempty"`
	Communication  float64            `json:"communication"`
	Recommendation string             `json:"recommendation"`
	Summary        string             `json:"summary"`
	GeneratedAt    time.Time          `json:"generatedAt"`
}

// Session is the aggregate root of an interview.
type Session struct {
	ID             string      `json:"id"`
	SessionKey     string      `json:"-"`
	CandidateID    string      `json:"candidateId"`
	IsPublicAccess bool        `json:"isPublicAccess"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	Type           Type        `json:"sessionType"`
	Language       i18n.Locale `json:"language"`
	Status         Status      `json:"status"`

	Transcript           []Turn   `json:"transcript"`
	Questions            []string `json:"questionsGenerated"`
	CurrentQuestionIndex int      `json:"currentQuestionIndex"`
	// FollowUps counts follow-ups asked for the current question.
	FollowUps int      `json:"followUps"`
	Settings  Settings `json:"settings"`

	AccessLog  []AccessEntry `json:"accessLog,omitempty"`
	Evaluation *Evaluation   `json:"evaluation,omitempty"`
	ReportURL  string        `json:"reportUrl,omitempty"`

	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

var (
	// ErrInvalidTransition is returned when a status change is not permitted.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoQuestions is returned when a session has no prepared questions.
	ErrNoQuestions = errors.New("session has no prepared questions")
)

func transitionErr(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CurrentQuestion returns the active prepared question.
func (s *Session) CurrentQuestion() string {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return ""
	}
	return s.Questions[s.CurrentQuestionIndex]
}

// HasNextQuestion reports whether a prepared question remains after the current one.
func (s *Session) HasNextQuestion() bool {
	return s.CurrentQuestionIndex+1 < len(s.Questions)
}

// Duration is derived from the start and end timestamps.
func (s *Session) Duration() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}

// Activate moves a pending session to active on its first processed utterance.
// It is a no-op for sessions already active.
func (s *Session) Activate(now time.Time) error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusPending:
		s.Status = StatusActive
		t := now
		s.StartTime = &t
		s.UpdatedAt = now
		return nil
	}
	return transitionErr(s.Status, StatusActive)
}

// AdvanceQuestion moves to the next prepared question. The index never exceeds
// len(Questions)-1 and never decreases.
func (s *Session) AdvanceQuestion(now time.Time) (string, error) {
	if s.Status != StatusActive {
		return "", transitionErr(s.Status, StatusActive)
	}
	if !s.HasNextQuestion() {
		return "", fmt.Errorf("advance past question %d of %d: %w", s.CurrentQuestionIndex, len(s.Questions), ErrInvalidTransition)
	}
	s.CurrentQuestionIndex++
	s.FollowUps = 0
	s.UpdatedAt = now
	return s.Questions[s.CurrentQuestionIndex], nil
}

// RecordFollowUp notes a follow-up asked without advancing.
func (s *Session) RecordFollowUp(now time.Time) {
	s.FollowUps++
	s.UpdatedAt = now
}

// Complete ends an active session after the prepared questions are exhausted.
func (s *Session) Complete(now time.Time) error {
	if s.Status != StatusActive {
		return transitionErr(s.Status, StatusCompleted)
	}
	s.Status = StatusCompleted
	t := now
	s.EndTime = &t
	s.UpdatedAt = now
	return nil
}

// Terminate ends an active session on explicit request.
func (s *Session) Terminate(now time.Time) error {
	if s.Status != StatusActive {
		return transitionErr(s.Status, StatusTerminated)
	}
	s.Status = StatusTerminated
	t := now
	s.EndTime = &t
	s.UpdatedAt = now
	return nil
}

// ExpireIfDue marks a pending or active session expired once now is past ExpiresAt.
// It reports whether the status changed.
func (s *Session) ExpireIfDue(now time.Time) bool {
	if s.Status != StatusPending && s.Status != StatusActive {
		return false
	}
	if s.ExpiresAt.IsZero() || !now.After(s.ExpiresAt) {
		return false
	}
	s.Status = StatusExpired
	if s.StartTime != nil {
		t := now
		s.EndTime = &t
	}
	s.UpdatedAt = now
	return true
}

// AppendTurn appends to the transcript. Turns are never modified once appended.
func (s *Session) AppendTurn(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.Transcript = append(s.Transcript, t)
	s.UpdatedAt = t.Timestamp
}

// RecordAccess appends an audit entry.
func (s *Session) RecordAccess(e AccessEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.AccessLog = append(s.AccessLog, e)
}

// Clone returns a deep copy so stored sessions are not aliased by callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Transcript = append([]Turn(nil), s.Transcript...)
	c.Questions = append([]string(nil), s.Questions...)
	c.AccessLog = append([]AccessEntry(nil), s.AccessLog...)
	if s.Evaluation != nil {
		ev := *s.Evaluation
		if s.Evaluation.Skills != nil {
			ev.Skills = make(map[string]float64, len(s.Evaluation.Skills))
			for k, v := range s.Evaluation.Skills {
				ev.Skills[k] = v
			}
		}
		c.Evaluation = &ev
	}
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}
