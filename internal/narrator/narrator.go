// internal/narrator/narrator.go
//
// Enemy narrator contract.
//
// A narrator decides the enemy's words for a turn and supplies flavour text
// and optional speech. Implementations:
//   - Gemini:    language-model backed (gemini.go).
//   - Fallback:  deterministic draw from the enemy pool (fallback.go).
//   - Resilient: timeout + retries around a primary, then Fallback.
//
// Narrator output is advisory: the turn engine resolves whatever words come
// back, and unknown words resolve as no-ops.

package narrator

import (
	"context"

	"github.com/robalobadob/orkbattle/internal/game"
)

// Request is the context a narrator sees for one enemy turn.
type Request struct {
	SessionID   string
	State       game.CombatState
	Turn        int
	PlayerWords []string
	AllowSpeak  bool
}

// Reply is the enemy's decision.
type Reply struct {
	Words  []string `yaml:"words" json:"words"`
	Text   string   `yaml:"text" json:"text"`
	Speaks []string `yaml:"speaks" json:"speaks"`
}

// Intent converts a reply for the engine.
func (r Reply) Intent() game.EnemyIntent {
	return game.EnemyIntent{Words: r.Words, Text: r.Text, Speaks: r.Speaks}
}

// Narrator picks the enemy's words for a turn.
type Narrator interface {
	EnemyTurn(ctx context.Context, req Request) (Reply, error)
}
