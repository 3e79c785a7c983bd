package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"

	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

// Supabase stores sessions through the project's PostgREST API using the same
// interview_sessions and candidates tables as the Postgres backend.
type Supabase struct {
	client *supabase.Client
}

// NewSupabase builds a Supabase-backed store with a service role key.
func NewSupabase(url, serviceRoleKey string) (*Supabase, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

func decodeSessions(rows []sessionRow) ([]*interview.Session, error) {
	out := make([]*interview.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.toSession()
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Supabase) GetSession(_ context.Context, id string) (*interview.Session, error) {
	var rows []sessionRow
	if _, err := s.client.From("interview_sessions").Select("*", "", false).Eq("id", id).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase select session: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rows[0].toSession()
}

func (s *Supabase) LatestSessionByKey(_ context.Context, key string) (*interview.Session, error) {
	var rows []sessionRow
	if _, err := s.client.From("interview_sessions").Select("*", "", false).Eq("session_key", key).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase select sessions: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("session for key: %w", ErrNotFound)
	}
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest.toSession()
}

func (s *Supabase) CreateSession(_ context.Context, sess *interview.Session) error {
	r, err := toSessionRow(sess)
	if err != nil {
		return err
	}
	if _, _, err := s.client.From("interview_sessions").Insert(r, false, "", "minimal", "").Execute(); err != nil {
		if strings.Contains(err.Error(), "23505") {
			return fmt.Errorf("session %s: %w", sess.ID, ErrExists)
		}
		return fmt.Errorf("supabase insert session: %w", err)
	}
	return nil
}

func (s *Supabase) SaveSession(_ context.Context, sess *interview.Session) error {
	r, err := toSessionRow(sess)
	if err != nil {
		return err
	}
	var updated []sessionRow
	_, err = s.client.From("interview_sessions").Update(r, "representation", "").Eq("id", sess.ID).ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("supabase update session: %w", err)
	}
	if len(updated) == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

func (s *Supabase) OpenSessions(_ context.Context) ([]*interview.Session, error) {
	var rows []sessionRow
	statuses := []string{string(interview.StatusPending), string(interview.StatusActive)}
	if _, err := s.client.From("interview_sessions").Select("*", "", false).In("status", statuses).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase select open sessions: %w", err)
	}
	return decodeSessions(rows)
}

func (s *Supabase) CandidateByKey(_ context.Context, key string) (*interview.Candidate, error) {
	var rows []candidateRow
	if _, err := s.client.From("candidates").Select("*", "", false).Eq("session_key", key).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase select candidate: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("candidate for key: %w", ErrNotFound)
	}
	return rows[0].toCandidate()
}

func (s *Supabase) PutCandidate(_ context.Context, c *interview.Candidate) error {
	r, err := toCandidateRow(c)
	if err != nil {
		return err
	}
	if _, _, err := s.client.From("candidates").Upsert(r, "id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("supabase upsert candidate: %w", err)
	}
	return nil
}
