// Package mock provides an in-memory mock implementation of
// [character.LearnedStore] for use in unit tests.
//
// The mock is safe for concurrent use, records method calls, and exposes
// exported fields for configuring return values.
//
// Example:
//
//	store := &mock.LearnedStore{ListResult: []character.LearnedName{{Name: "Estinien"}}}
//	sess, err := session.New(ctx, loader, session.WithLearnedStore(store))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lorelens/internal/character"
)

// LearnedStore is a mock implementation of [character.LearnedStore].
type LearnedStore struct {
	mu sync.Mutex

	// ListResult is returned by [LearnedStore.List]. Saved names are
	// appended to it so a later List sees them.
	ListResult []character.LearnedName

	// SaveError is returned by [LearnedStore.Save].
	SaveError error

	// ListError is returned by [LearnedStore.List].
	ListError error

	// SaveCalls records every name passed to Save.
	SaveCalls []character.LearnedName

	// CallCountList records how many times List was called.
	CallCountList int

	// Closed is set by Close.
	Closed bool
}

// Compile-time interface check.
var _ character.LearnedStore = (*LearnedStore)(nil)

// Save implements [character.LearnedStore.Save].
func (m *LearnedStore) Save(_ context.Context, name character.LearnedName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = append(m.SaveCalls, name)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.ListResult = append(m.ListResult, name)
	return nil
}

// List implements [character.LearnedStore.List].
func (m *LearnedStore) List(_ context.Context) ([]character.LearnedName, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountList++
	if m.ListError != nil {
		return nil, m.ListError
	}
	out := make([]character.LearnedName, len(m.ListResult))
	copy(out, m.ListResult)
	return out, nil
}

// Close implements [character.LearnedStore.Close].
func (m *LearnedStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Saved returns a copy of all names passed to Save.
func (m *LearnedStore) Saved() []character.LearnedName {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]character.LearnedName, len(m.SaveCalls))
	copy(out, m.SaveCalls)
	return out
}
