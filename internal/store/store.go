// internal/store/store.go
//
// Session persistence.
//
// A Session is the record the controller keeps per run: the authoritative
// CombatState plus the ordered history of resolved turns. Player-made words
// are stored alongside so the registry can be rebuilt after a restart.
// Implementations:
//   - memory: map + RWMutex, lost on restart (dev/tests).
//   - sqlite: sessions, turns and custom_words tables, one transaction per
//     resolved turn.
//
// Writes are optimistic on the turn counter: AppendTurn only succeeds when
// the resolution is for stored turn+1, and SaveState only when the stored
// turn is unchanged, so a stale writer can never overwrite a newer state.

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/robalobadob/orkbattle/internal/apperr"
	"github.com/robalobadob/orkbattle/internal/game"
)

// Session is one persisted run.
type Session struct {
	ID        string                `json:"id"`
	Mode      string                `json:"mode"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	State     game.CombatState      `json:"state"`
	History   []game.TurnResolution `json:"history"`
}

// Resolution returns the stored resolution for turn.
func (s *Session) Resolution(turn int) (game.TurnResolution, bool) {
	for _, r := range s.History {
		if r.Turn == turn {
			return r, true
		}
	}
	return game.TurnResolution{}, false
}

func (s *Session) clone() *Session {
	c := *s
	c.State = s.State.Clone()
	c.History = slices.Clone(s.History)
	return &c
}

// CustomWord is a player-made word: its key and the role template it was
// built from.
type CustomWord struct {
	Key  string `json:"key"`
	Role string `json:"role"`
}

// Store persists sessions.
type Store interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// Get loads a session with its full history.
	Get(ctx context.Context, id string) (*Session, error)

	// SaveState replaces the state of a session whose turn counter matches.
	SaveState(ctx context.Context, id string, st game.CombatState) error

	// AppendTurn records a resolution for stored turn+1 and sets the state
	// to its StateAfter, atomically.
	AppendTurn(ctx context.Context, id string, res game.TurnResolution) error

	// SaveCustomWord records a custom word. Saving a known key is a no-op.
	SaveCustomWord(ctx context.Context, w CustomWord) error

	// CustomWords lists recorded custom words in the order they were saved.
	CustomWords(ctx context.Context) ([]CustomWord, error)
}

func notFound(id string) error {
	return apperr.Newf(apperr.KindSessionNotFound, "session %q not found", id)
}

func corruptState(id string, err error) error {
	return apperr.Wrap(apperr.KindInterpreterError, fmt.Sprintf("session %q has an unreadable state", id), err)
}

// checkState rejects decoded states that cannot belong to a started run.
func checkState(st game.CombatState) error {
	switch {
	case st.Phase == "":
		return errors.New("missing phase")
	case st.Player.HPMax <= 0 || st.Enemy.HPMax <= 0:
		return errors.New("missing combatants")
	}
	return nil
}

func staleTurn(id string, turn int) error {
	return apperr.Newf(apperr.KindTurnAlreadyResolved, "session %q moved past turn %d", id, turn)
}
