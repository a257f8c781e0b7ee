// internal/store/memory.go
//
// In-memory implementation of Store.
//
// Characteristics:
//   - Sessions keyed by ID in a map, guarded by an RWMutex.
//   - Get returns a copy; callers never share the stored record.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robalobadob/orkbattle/internal/game"
)

type memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	custom   []CustomWord
	now      func() time.Time
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*Session), now: time.Now}
}

func (m *memory) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("store: session %q already exists", s.ID)
	}
	c := s.clone()
	c.CreatedAt = m.now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.sessions[s.ID] = c
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return s.clone(), nil
}

func (m *memory) SaveState(ctx context.Context, id string, st game.CombatState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return notFound(id)
	}
	if s.State.Turn != st.Turn {
		return staleTurn(id, st.Turn)
	}
	s.State = st.Clone()
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memory) AppendTurn(ctx context.Context, id string, res game.TurnResolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return notFound(id)
	}
	if res.Turn != s.State.Turn+1 {
		return staleTurn(id, res.Turn)
	}
	s.State = res.StateAfter.Clone()
	s.History = append(s.History, res)
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memory) SaveCustomWord(ctx context.Context, w CustomWord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.ContainsFunc(m.custom, func(c CustomWord) bool { return c.Key == w.Key }) {
		return nil
	}
	m.custom = append(m.custom, w)
	return nil
}

func (m *memory) CustomWords(ctx context.Context) ([]CustomWord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.custom), nil
}
