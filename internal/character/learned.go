package character

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrNotFound is returned when a learned name does not exist.
var ErrNotFound = errors.New("learned name not found")

// LearnedStore persists provisional speakers that were promoted after
// repeated sightings, and supplies them again at startup.
//
// All implementations must be safe for concurrent use.
type LearnedStore interface {
	// Save inserts or replaces the learned name, keyed case-insensitively
	// by Name. Observations and Confidence are overwritten; PromotedAt of an
	// existing entry is preserved.
	Save(ctx context.Context, name LearnedName) error

	// List returns every learned name ordered by name.
	List(ctx context.Context) ([]LearnedName, error)

	// Close releases underlying resources.
	Close() error
}

// Compile-time assertion that MemLearnedStore satisfies the LearnedStore interface.
var _ LearnedStore = (*MemLearnedStore)(nil)

// MemLearnedStore is a thread-safe, in-memory [LearnedStore]. Promotions are
// lost when the process exits; it is suitable for tests and for the
// "memory" learned backend. The zero value is ready to use.
type MemLearnedStore struct {
	mu    sync.RWMutex
	names map[string]LearnedName
}

// NewMemLearnedStore returns an initialised [MemLearnedStore].
func NewMemLearnedStore() *MemLearnedStore {
	return &MemLearnedStore{names: make(map[string]LearnedName)}
}

// Save implements [LearnedStore.Save].
func (s *MemLearnedStore) Save(_ context.Context, name LearnedName) error {
	key := Fold(name.Name)
	if key == "" {
		return errors.New("character: learned name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.names == nil {
		s.names = make(map[string]LearnedName)
	}
	if prev, ok := s.names[key]; ok && !prev.PromotedAt.IsZero() {
		name.PromotedAt = prev.PromotedAt
	}
	s.names[key] = name
	return nil
}

// List implements [LearnedStore.List].
func (s *MemLearnedStore) List(_ context.Context) ([]LearnedName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]LearnedName, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b LearnedName) int {
		return strings.Compare(Fold(a.Name), Fold(b.Name))
	})
	return out, nil
}

// Close implements [LearnedStore.Close]. It is a no-op.
func (s *MemLearnedStore) Close() error { return nil }
