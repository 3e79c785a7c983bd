// Package invite gates access to interview sessions by session key.
package invite

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/store"
)

// Reason is a typed rejection cause.
type Reason string

const (
	ReasonNotFound    Reason = "not-found"
	ReasonExpired     Reason = "expired"
	ReasonKeyMismatch Reason = "key-mismatch"
	ReasonKeyRequired Reason = "key-required"
)

// Rejection is returned when access is refused. It unwraps to a validation error.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string { return "access rejected: " + string(r.Reason) }

func (r *Rejection) Unwrap() error { return apperr.Validation("invite", string(r.Reason)) }

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

// Lookup is the read side of the store the validator needs.
type Lookup interface {
	GetSession(ctx context.Context, id string) (*interview.Session, error)
	CandidateByKey(ctx context.Context, key string) (*interview.Candidate, error)
}

// Validator applies one rule set to both the REST start endpoint and the realtime channel.
type Validator struct {
	lookup Lookup
	now    func() time.Time
}

// NewValidator constructs a Validator. now defaults to time.Now.
func NewValidator(lookup Lookup, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{lookup: lookup, now: now}
}

// grant is the access-relevant view of an owning record.
type grant struct {
	key       string
	public    bool
	expiresAt time.Time
	expired   bool
}

// check is the single rule set shared by every entry point.
func check(g grant, presented string, now time.Time) error {
	if g.public {
		if presented == "" {
			return &Rejection{Reason: ReasonKeyRequired}
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(g.key)) != 1 {
			return &Rejection{Reason: ReasonKeyMismatch}
		}
	}
	if g.expired || (!g.expiresAt.IsZero() && now.After(g.expiresAt)) {
		return &Rejection{Reason: ReasonExpired}
	}
	return nil
}

// ValidateKey resolves an invitation by its public session key (REST start entry point).
func (v *Validator) ValidateKey(ctx context.Context, key string) (*interview.Candidate, error) {
	if key == "" {
		return nil, &Rejection{Reason: ReasonKeyRequired}
	}
	c, err := v.lookup.CandidateByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Rejection{Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup invitation: %w", err)
	}
	g := grant{key: c.SessionKey, public: true, expiresAt: c.InvitationExpiresAt}
	if err := check(g, key, v.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateSession resolves a session by id and checks the presented key (realtime entry point).
func (v *Validator) ValidateSession(ctx context.Context, sessionID, key string) (*interview.Session, error) {
	if sessionID == "" {
		return nil, &Rejection{Reason: ReasonNotFound}
	}
	s, err := v.lookup.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Rejection{Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	g := grant{
		key:       s.SessionKey,
		public:    s.IsPublicAccess,
		expiresAt: s.ExpiresAt,
		expired:   s.Status == interview.StatusExpired,
	}
	if err := check(g, key, v.now()); err != nil {
		return nil, err
	}
	return s, nil
}
