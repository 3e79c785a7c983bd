package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/invite"
	"github.com/Iosefkan/Interviews-sub000/internal/store"
)

// DefaultMaxQuestions applies when an invitation sets no limit.
const DefaultMaxQuestions = 5

// Service owns session lifecycle around the turn pipeline.
type Service struct {
	*Pipeline
	Validator *invite.Validator
	// OnFinished is called after a session leaves the open states outside the
	// pipeline (termination, sweep) so live connections can be closed.
	OnFinished func(sessionID string, status interview.Status)
}

func NewService(p *Pipeline, v *invite.Validator) *Service {
	p.init()
	return &Service{Pipeline: p, Validator: v}
}

// StartRequest is a public start or resume.
type StartRequest struct {
	SessionKey string
	Type       interview.Type
	RemoteAddr string
	UserAgent  string
}

// StartResult carries the interviewer's current prompt for the session.
type StartResult struct {
	Session  *interview.Session
	Question string
	Text     string
	AudioURL *string
	Resumed  bool
}

// StartPublic validates the session key, then resumes the latest open session
// for it or creates a new one with prepared questions and an opening turn.
func (s *Service) StartPublic(ctx context.Context, req StartRequest) (*StartResult, error) {
	cand, err := s.Validator.ValidateKey(ctx, req.SessionKey)
	if err != nil {
		return nil, err
	}
	unlock := s.lock("key:" + req.SessionKey)
	defer unlock()

	latest, err := s.Store.LatestSessionByKey(ctx, req.SessionKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("lookup session for key: %w", err)
	default:
		return s.resume(ctx, latest.ID, req)
	}
	return s.create(ctx, cand, req)
}

func (s *Service) resume(ctx context.Context, sessionID string, req StartRequest) (*StartResult, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	sess, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.RecordAccess(interview.AccessEntry{At: s.Now(), Channel: "rest", Action: "resume", RemoteAddr: req.RemoteAddr, UserAgent: req.UserAgent})
	if err := s.Store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save access: %w", err)
	}
	res := &StartResult{Session: sess, Question: sess.CurrentQuestion(), Resumed: true}
	for i := len(sess.Transcript) - 1; i >= 0; i-- {
		if t := sess.Transcript[i]; t.Speaker == interview.SpeakerAI {
			res.Text = t.Content
			if t.AudioURL != "" {
				u := t.AudioURL
				res.AudioURL = &u
			}
			break
		}
	}
	log.Printf("[%s] resumed at question %d", sess.ID, sess.CurrentQuestionIndex)
	return res, nil
}

func (s *Service) create(ctx context.Context, cand *interview.Candidate, req StartRequest) (*StartResult, error) {
	now := s.Now()
	loc := cand.Language
	if loc == "" {
		loc = i18n.English
	}
	settings := cand.Settings
	if settings.MaxQuestions <= 0 {
		settings.MaxQuestions = DefaultMaxQuestions
	}
	sess := &interview.Session{
		ID:             uuid.NewString(),
		SessionKey:     cand.SessionKey,
		CandidateID:    cand.ID,
		IsPublicAccess: true,
		ExpiresAt:      cand.InvitationExpiresAt,
		Type:           req.Type,
		Language:       loc,
		Status:         interview.StatusPending,
		Settings:       settings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sess.Type == "" {
		sess.Type = interview.TypeMixed
	}
	sess.Questions = s.prepareQuestions(ctx, cand, sess)
	if len(sess.Questions) == 0 {
		return nil, apperr.Wrap(apperr.KindInternal, "session.create", interview.ErrNoQuestions)
	}

	opening := s.Dialogue.Opening(cand.Profile(), loc, sess.Questions[0])
	audioURL := s.speak(ctx, sess.ID, opening, loc)
	turn := interview.Turn{Speaker: interview.SpeakerAI, Content: opening, Timestamp: now, Category: interview.CategoryQuestion}
	if audioURL != nil {
		turn.AudioURL = *audioURL
	}
	sess.AppendTurn(turn)
	sess.RecordAccess(interview.AccessEntry{At: now, Channel: "rest", Action: "start", RemoteAddr: req.RemoteAddr, UserAgent: req.UserAgent})

	if err := s.Store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, apperr.Wrap(apperr.KindConflict, "session.create", err)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Metrics.Transition(string(interview.StatusPending))
	log.Printf("[%s] created %s interview with %d questions (%s)", sess.ID, sess.Type, len(sess.Questions), loc)
	return &StartResult{Session: sess, Question: sess.Questions[0], Text: opening, AudioURL: audioURL}, nil
}

// prepareQuestions prefers the invitation's own questions, then AI generated
// ones, then the built-in set for the session type.
func (s *Service) prepareQuestions(ctx context.Context, cand *interview.Candidate, sess *interview.Session) []string {
	limit := sess.Settings.MaxQuestions
	if len(cand.Questions) > 0 {
		qs := append([]string(nil), cand.Questions...)
		if len(qs) > limit {
			qs = qs[:limit]
		}
		return qs
	}
	qs, err := s.Dialogue.GenerateQuestions(ctx, cand.Profile(), sess.Type, limit, sess.Language)
	if err == nil && len(qs) > 0 {
		return qs
	}
	log.Printf("[%s] question generation failed, using defaults: %v", sess.ID, err)
	return i18n.DefaultQuestions(sess.Language, string(sess.Type), limit)
}

// Terminate ends an active session on explicit request.
func (s *Service) Terminate(ctx context.Context, sessionID string) (*interview.Session, error) {
	unlock := s.lock(sessionID)
	sess, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := sess.Terminate(s.Now()); err != nil {
		unlock()
		return nil, apperr.Wrap(apperr.KindConflict, "session.terminate", err)
	}
	if err := s.Store.SaveSession(ctx, sess); err != nil {
		unlock()
		return nil, fmt.Errorf("save terminated session: %w", err)
	}
	s.Audio.Drop(sessionID)
	unlock()

	s.Metrics.Transition(string(interview.StatusTerminated))
	log.Printf("[%s] terminated", sessionID)
	s.finished(sessionID, sess.Status)
	return sess, nil
}

// Sweep expires every open session past its deadline and returns how many changed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	open, err := s.Store.OpenSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open sessions: %w", err)
	}
	now := s.Now()
	n := 0
	for _, sess := range open {
		if sess.ExpiresAt.IsZero() || !now.After(sess.ExpiresAt) {
			continue
		}
		if s.expire(ctx, sess.ID, now) {
			n++
		}
	}
	return n, nil
}

func (s *Service) expire(ctx context.Context, sessionID string, now time.Time) bool {
	unlock := s.lock(sessionID)
	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil || !sess.ExpireIfDue(now) {
		unlock()
		return false
	}
	if err := s.Store.SaveSession(ctx, sess); err != nil {
		unlock()
		log.Printf("[%s] save expired session: %v", sessionID, err)
		return false
	}
	s.Audio.Drop(sessionID)
	unlock()

	s.Metrics.Transition(string(interview.StatusExpired))
	log.Printf("[%s] expired by sweep", sessionID)
	s.finished(sessionID, interview.StatusExpired)
	return true
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				log.Printf("sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("sweep expired %d sessions", n)
			}
		}
	}
}

// RecordConnect audits a granted realtime connection.
func (s *Service) RecordConnect(ctx context.Context, sessionID string, e interview.AccessEntry) error {
	unlock := s.lock(sessionID)
	defer unlock()
	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = s.Now()
	}
	sess.RecordAccess(e)
	return s.Store.SaveSession(ctx, sess)
}

// Snapshot returns the session after applying lazy expiry.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*interview.Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()
	sess, err := s.Store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, "session.get", err)
	}
	if err != nil {
		return nil, err
	}
	if sess.ExpireIfDue(s.Now()) {
		if err := s.Store.SaveSession(ctx, sess); err != nil {
			log.Printf("[%s] save expired session: %v", sessionID, err)
		}
		s.Audio.Drop(sessionID)
		s.Metrics.Transition(string(interview.StatusExpired))
	}
	return sess, nil
}

func (s *Service) finished(sessionID string, status interview.Status) {
	if s.OnFinished != nil {
		s.OnFinished(sessionID, status)
	}
}
