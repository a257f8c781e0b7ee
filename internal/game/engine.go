// internal/game/engine.go
//
// Turn Engine: the deterministic state machine for one turn.
//
// ResolveTurn(state, submission):
//  1. Validate: turn guard, then phase == battle, then 1..maxWordsPerTurn
//     player words all drawn from the player's pool.
//  2. Resolve the player's words against the current state and apply them,
//     producing an intermediate state.
//  3. Resolve the enemy's words against the intermediate state and apply
//     them. The enemy always acts, even at 0 hp: the turn is simultaneous.
//  4. Derive the phase (player defeat wins ties), bump the turn counter and
//     score a kill.
//
// The engine is pure: the same state, submission and dice always produce the
// same resolution, and the input state is never modified.

package game

import (
	"fmt"
	"strings"

	"github.com/robalobadob/orkbattle/internal/apperr"
)

// EnemyIntent is what the narrator decided for the enemy this turn.
// Words outside the registry resolve as no-op steps.
type EnemyIntent struct {
	Words  []string
	Text   string
	Speaks []string
}

// Submission is one player turn. Turn 0 means "the next turn".
type Submission struct {
	Turn        int
	PlayerWords []string
	Enemy       EnemyIntent
}

// Engine resolves turns.
type Engine struct {
	resolver *Resolver
}

// Option configures an Engine.
type Option func(*Engine)

// WithDice replaces the seeded dice, mostly for tests.
func WithDice(d Dice) Option {
	return func(e *Engine) { e.resolver.dice = d }
}

// NewEngine returns an engine that looks words up in src.
func NewEngine(src WordSource, opts ...Option) *Engine {
	e := &Engine{resolver: NewResolver(src, nil)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NormalizeWords trims and uppercases submitted keys.
func NormalizeWords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, w := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(w)))
	}
	return out
}

// Validate checks a submission against st without resolving it.
func (e *Engine) Validate(st CombatState, turn int, playerWords []string) error {
	if turn != 0 {
		if turn <= st.Turn {
			return apperr.Newf(apperr.KindTurnAlreadyResolved, "turn %d already resolved", turn)
		}
		if turn > st.Turn+1 {
			return apperr.Newf(apperr.KindTurnOutOfOrder, "expected turn %d, got %d", st.Turn+1, turn)
		}
	}
	if st.Phase != PhaseBattle {
		return apperr.Newf(apperr.KindNotInBattlePhase, "phase is %s", st.Phase)
	}
	if n := len(playerWords); n < 1 || n > st.Limits.MaxWordsPerTurn {
		return apperr.Newf(apperr.KindInvalidWordSelection, "submit 1 to %d words, got %d", st.Limits.MaxWordsPerTurn, n)
	}
	for _, w := range NormalizeWords(playerWords) {
		if !st.Player.HasWord(w) {
			return apperr.Newf(apperr.KindInvalidWordSelection, "%q is not in your pool", w)
		}
	}
	return nil
}

// ResolveTurn validates and resolves one turn, returning the resolution and
// the next state.
func (e *Engine) ResolveTurn(st CombatState, sub Submission) (TurnResolution, CombatState, error) {
	if err := e.Validate(st, sub.Turn, sub.PlayerWords); err != nil {
		return TurnResolution{}, CombatState{}, err
	}
	turn := st.Turn + 1
	playerWords := NormalizeWords(sub.PlayerWords)
	enemyWords := NormalizeWords(sub.Enemy.Words)
	if len(enemyWords) > st.Limits.MaxWordsPerTurn {
		enemyWords = enemyWords[:st.Limits.MaxWordsPerTurn]
	}

	b := NewBattle(st)

	playerSteps := e.resolver.Resolve(b.Snapshot(), SlotPlayer, turn, playerWords)
	b.applyDeltas(SlotPlayer, playerSteps)

	enemySteps := e.resolver.Resolve(b.Snapshot(), SlotEnemy, turn, enemyWords)
	b.applyDeltas(SlotEnemy, enemySteps)

	b.finishTurn(turn)
	after := b.Snapshot()

	res := TurnResolution{
		Turn:        turn,
		PlayerWords: playerWords,
		EnemyWords:  enemyWords,
		PlayerPlan: Plan{
			Text:   fmt.Sprintf("%s bellows %s!", st.Player.Name, strings.Join(playerWords, ", ")),
			Steps:  playerSteps,
			Speaks: []string{strings.Join(playerWords, "! ") + "!"},
		},
		EnemyPlan: Plan{
			Text:   enemyText(st.Enemy.Name, enemyWords, sub.Enemy.Text),
			Steps:  enemySteps,
			Speaks: nonNil(sub.Enemy.Speaks),
		},
		Log:        make([]string, 0, len(playerSteps)+len(enemySteps)),
		StateAfter: after,
		End: EndFlags{
			EnemyDefeated:  after.Enemy.HP == 0,
			PlayerDefeated: after.Player.HP == 0,
		},
	}
	for _, s := range playerSteps {
		res.Log = append(res.Log, s.Log)
	}
	for _, s := range enemySteps {
		res.Log = append(res.Log, s.Log)
	}
	return res, after.Clone(), nil
}

func enemyText(name string, keys []string, text string) string {
	if text != "" {
		return text
	}
	if len(keys) == 0 {
		return fmt.Sprintf("%s hesitates.", name)
	}
	return fmt.Sprintf("%s answers with %s.", name, strings.Join(keys, ", "))
}

func nonNil(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return append([]string(nil), s...)
}
