// Package store is the persistence boundary for sessions and invitation records.
package store

import (
	"context"
	"errors"

	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

// Sentinel errors, callers use errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Store persists interview sessions and reads candidate invitations.
type Store interface {
	GetSession(ctx context.Context, id string) (*interview.Session, error)
	// LatestSessionByKey returns the most recently created session for a session key.
	LatestSessionByKey(ctx context.Context, key string) (*interview.Session, error)
	CreateSession(ctx context.Context, s *interview.Session) error
	SaveSession(ctx context.Context, s *interview.Session) error
	// OpenSessions returns sessions in pending or active status.
	OpenSessions(ctx context.Context) ([]*interview.Session, error)

	CandidateByKey(ctx context.Context, key string) (*interview.Candidate, error)
	PutCandidate(ctx context.Context, c *interview.Candidate) error
}
