// internal/narrator/fallback.go
//
// Deterministic enemy turn used when no model is configured or it fails.

package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/robalobadob/orkbattle/internal/apperr"
	"github.com/robalobadob/orkbattle/internal/game"
)

var battleCries = []string{
	"Hold the line!",
	"You'll not pass, greenskin!",
	"Is that all you've got?",
	"Come closer and find out!",
	"I've krumped bigger than you!",
}

// Fallback draws the enemy's words from its own pool with the seeded
// fallback stream, so the same turn always gets the same answer.
type Fallback struct {
	dice game.Dice
}

// NewFallback returns a fallback narrator; nil dice means game.SeededDice.
func NewFallback(dice game.Dice) *Fallback {
	if dice == nil {
		dice = game.SeededDice
	}
	return &Fallback{dice: dice}
}

func (f *Fallback) EnemyTurn(_ context.Context, req Request) (Reply, error) {
	enemy := req.State.Enemy
	if len(enemy.Words) == 0 {
		return Reply{}, apperr.Newf(apperr.KindInterpreterError, "%s has no words to use", enemy.Name)
	}
	s := f.dice(game.StreamKey{
		Seed:  req.State.Seed,
		Wave:  req.State.Wave,
		Turn:  req.Turn,
		Slot:  game.SlotEnemy,
		Index: game.FallbackIndex,
	})

	n := 1 + s.IntN(max(req.State.Limits.MaxWordsPerTurn, 1))
	picked := make([]string, 0, n)
	for range n {
		picked = append(picked, enemy.Words[s.IntN(len(enemy.Words))])
	}

	r := Reply{
		Words:  picked,
		Text:   fmt.Sprintf("%s goes for %s.", enemy.Name, strings.Join(picked, ", ")),
		Speaks: []string{},
	}
	if req.AllowSpeak {
		r.Speaks = []string{battleCries[s.IntN(len(battleCries))]}
	}
	return r, nil
}
