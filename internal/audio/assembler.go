package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
)

// ErrNoAudioData is returned by a flush with nothing buffered.
var ErrNoAudioData = errors.New("no audio data buffered")

// BufferStore holds pending fragments per session.
type BufferStore interface {
	Get(sessionID string) [][]byte
	Set(sessionID string, fragments [][]byte)
	Delete(sessionID string)
}

// MemoryBuffers is a process-local BufferStore.
type MemoryBuffers struct {
	mu sync.Mutex
	m  map[string][][]byte
}

func NewMemoryBuffers() *MemoryBuffers {
	return &MemoryBuffers{m: make(map[string][][]byte)}
}

func (b *MemoryBuffers) Get(sessionID string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.m[sessionID]
	out := make([][]byte, len(src))
	copy(out, src)
	return out
}

func (b *MemoryBuffers) Set(sessionID string, fragments [][]byte) {
	b.mu.Lock()
	b.m[sessionID] = fragments
	b.mu.Unlock()
}

func (b *MemoryBuffers) Delete(sessionID string) {
	b.mu.Lock()
	delete(b.m, sessionID)
	b.mu.Unlock()
}

// Assembler accumulates fragments and merges them on flush.
type Assembler struct {
	mu    sync.Mutex
	store BufferStore
}

// NewAssembler returns an Assembler over store, or over process memory when store is nil.
func NewAssembler(store BufferStore) *Assembler {
	if store == nil {
		store = NewMemoryBuffers()
	}
	return &Assembler{store: store}
}

// Append stores a fragment after any already buffered for the session and
// returns the fragment's size.
func (a *Assembler) Append(_ context.Context, sessionID string, fragment []byte) int {
	if len(fragment) == 0 {
		return 0
	}
	cp := make([]byte, len(fragment))
	copy(cp, fragment)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.Set(sessionID, append(a.store.Get(sessionID), cp))
	return len(cp)
}

// FlushAndMerge merges and clears the session's fragments. An empty buffer
// yields a no_audio error and leaves the store untouched; so does a failed merge.
func (a *Assembler) FlushAndMerge(_ context.Context, sessionID string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fragments := a.store.Get(sessionID)
	if len(fragments) == 0 {
		return nil, apperr.Wrap(apperr.KindNoAudio, "audio.flush", ErrNoAudioData)
	}
	merged, err := MergeWAV(fragments)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProtocol, "audio.merge", err)
	}
	a.store.Delete(sessionID)
	return merged, nil
}

// Pending reports the number of buffered fragments for the session.
func (a *Assembler) Pending(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.store.Get(sessionID))
}

// Drop discards buffered audio for a session that can no longer accept any.
func (a *Assembler) Drop(sessionID string) {
	a.mu.Lock()
	a.store.Delete(sessionID)
	a.mu.Unlock()
}
