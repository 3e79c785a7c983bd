package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

// Memory is an in-process Store. Values are copied on the way in and out.
type Memory struct {
	mu         sync.RWMutex
	sessions   map[string]*interview.Session
	byKey      map[string][]string
	candidates map[string]*interview.Candidate
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{
		sessions:   make(map[string]*interview.Session),
		byKey:      make(map[string][]string),
		candidates: make(map[string]*interview.Candidate),
	}
}

func (m *Memory) GetSession(_ context.Context, id string) (*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *Memory) LatestSessionByKey(_ context.Context, key string) (*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byKey[key]
	if len(ids) == 0 {
		return nil, fmt.Errorf("session for key: %w", ErrNotFound)
	}
	return m.sessions[ids[len(ids)-1]].Clone(), nil
}

func (m *Memory) CreateSession(_ context.Context, s *interview.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrExists)
	}
	m.sessions[s.ID] = s.Clone()
	if s.SessionKey != "" {
		m.byKey[s.SessionKey] = append(m.byKey[s.SessionKey], s.ID)
	}
	return nil
}

func (m *Memory) SaveSession(_ context.Context, s *interview.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) OpenSessions(_ context.Context) ([]*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*interview.Session
	for _, s := range m.sessions {
		if s.Status == interview.StatusPending || s.Status == interview.StatusActive {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *Memory) CandidateByKey(_ context.Context, key string) (*interview.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[key]
	if !ok {
		return nil, fmt.Errorf("candidate for key: %w", ErrNotFound)
	}
	cp := *c
	cp.Questions = append([]string(nil), c.Questions...)
	return &cp, nil
}

func (m *Memory) PutCandidate(_ context.Context, c *interview.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Questions = append([]string(nil), c.Questions...)
	m.candidates[c.SessionKey] = &cp
	return nil
}
