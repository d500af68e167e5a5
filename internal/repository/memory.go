package repository

import (
	"context"
	"sync"

	"github.com/cardtable/blackjack-server/internal/round"
)

// MemoryStore keeps rounds in process memory. It is the default driver and the one used
// by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rounds map[string]*round.Round
	codes  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rounds: make(map[string]*round.Round),
		codes:  make(map[string]string),
	}
}

// Create inserts a new round.
func (m *MemoryStore) Create(ctx context.Context, r *round.Round) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rounds[r.ID]; exists {
		return ErrDuplicateID
	}
	if id, taken := m.codes[r.JoinCode]; taken {
		if existing, ok := m.rounds[id]; ok && !existing.Finished {
			return round.ErrJoinCodeTaken
		}
	}

	r.Version = 1
	m.rounds[r.ID] = r.Clone()
	m.codes[r.JoinCode] = r.ID
	return nil
}

// Get returns a copy of the round.
func (m *MemoryStore) Get(ctx context.Context, id string) (*round.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[id]
	if !ok {
		return nil, round.ErrRoundNotFound
	}
	return r.Clone(), nil
}

// GetByJoinCode returns a copy of the round registered under code.
func (m *MemoryStore) GetByJoinCode(ctx context.Context, code string) (*round.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, round.ErrRoundNotFound
	}
	r, ok := m.rounds[id]
	if !ok {
		return nil, round.ErrRoundNotFound
	}
	return r.Clone(), nil
}

// Save replaces the round when the stored version matches. An open round claims its join
// code unless another open round holds it.
func (m *MemoryStore) Save(ctx context.Context, r *round.Round) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rounds[r.ID]
	if !ok {
		return round.ErrRoundNotFound
	}
	if current.Version != r.Version {
		return round.ErrVersionConflict
	}
	if !r.Finished {
		if holder, taken := m.codes[r.JoinCode]; taken && holder != r.ID {
			if other, ok := m.rounds[holder]; ok && !other.Finished {
				return round.ErrJoinCodeTaken
			}
		}
	}

	r.Version++
	m.rounds[r.ID] = r.Clone()
	if !r.Finished {
		m.codes[r.JoinCode] = r.ID
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored rounds.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rounds)
}
