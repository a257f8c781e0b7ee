// internal/game/state.go
//
// Battle is the Combat State container. It owns one CombatState and is the
// only place deltas are written into it:
//   - Snapshot returns a deep copy for read-only use.
//   - applyDeltas writes a resolved pass (engine only).
//   - Start, AdvanceWave and LearnWord are the controller transitions.
//
// Every write clamps into the valid ranges; a violated invariant afterwards
// is a programming error and panics.

package game

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/robalobadob/orkbattle/internal/apperr"
)

// Battle holds the authoritative state for one run.
type Battle struct {
	st CombatState
}

// NewBattle wraps a copy of st.
func NewBattle(st CombatState) *Battle {
	return &Battle{st: st.Clone()}
}

// Snapshot returns a deep copy of the current state.
func (b *Battle) Snapshot() CombatState {
	return b.st.Clone()
}

// Start moves a fresh run into battle.
func (b *Battle) Start() error {
	if b.st.Phase != PhaseStart {
		return apperr.Newf(apperr.KindNotInBattlePhase, "cannot start from phase %s", b.st.Phase)
	}
	b.st.Phase = PhaseBattle
	return nil
}

// ---- delta application ----

const (
	statHP       = "hp"
	statArmor    = "armor"
	statRage     = "rage"
	statAmmo     = "ammo"
	statCover    = "cover"
	statDistance = "distance"
)

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// applyStat changes one stat of c by change, clamped, and returns the change
// actually applied.
func applyStat(c *Combatant, stat string, change int) int {
	switch stat {
	case statHP:
		old := c.HP
		c.HP = clamp(c.HP+change, 0, c.HPMax)
		return c.HP - old
	case statArmor:
		old := c.Armor
		c.Armor = max(c.Armor+change, 1)
		return c.Armor - old
	case statRage:
		old := c.Rage
		c.Rage = max(c.Rage+change, 1)
		return c.Rage - old
	case statAmmo:
		old := c.Ammo
		c.Ammo = max(c.Ammo+change, 0)
		return c.Ammo - old
	case statCover:
		switch {
		case change > 0 && !c.Cover:
			c.Cover = true
			return 1
		case change < 0 && c.Cover:
			c.Cover = false
			return -1
		}
		return 0
	case statDistance:
		old := c.Distance.ordinal()
		next := clamp(old+change, 0, len(distanceOrder)-1)
		c.Distance = distanceOrder[next]
		return next - old
	default:
		panic(fmt.Sprintf("game: unknown stat %q", stat))
	}
}

// splitDeltaKey turns "enemy_hp" into (SlotEnemy-relative target, "hp").
func splitDeltaKey(actor Slot, key string) (Slot, string) {
	who, stat, ok := strings.Cut(key, "_")
	if !ok {
		panic(fmt.Sprintf("game: malformed delta key %q", key))
	}
	if who == "enemy" {
		return opponent(actor), stat
	}
	return actor, stat
}

func opponent(s Slot) Slot {
	if s == SlotPlayer {
		return SlotEnemy
	}
	return SlotPlayer
}

// applyDeltas writes the steps of one actor's pass, in order.
func (b *Battle) applyDeltas(actor Slot, steps []PlanStep) {
	for _, step := range steps {
		keys := make([]string, 0, len(step.Delta))
		for k := range step.Delta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			slot, stat := splitDeltaKey(actor, k)
			applyStat(b.st.combatant(slot), stat, step.Delta[k])
		}
	}
	b.checkInvariants()
}

func (b *Battle) checkInvariants() {
	for _, c := range []*Combatant{&b.st.Player, &b.st.Enemy} {
		if c.HP < 0 || c.HP > c.HPMax || c.Armor < 1 || c.Rage < 1 || c.Ammo < 0 {
			panic(fmt.Sprintf("game: invariant violated for %s: %+v", c.ID, *c))
		}
	}
}

// finishTurn records the turn number, derives the phase and scores a kill.
func (b *Battle) finishTurn(turn int) {
	b.st.Turn = turn
	b.st.Phase = DerivePhase(b.st)
	if b.st.Phase == PhaseRewards {
		b.st.Score += 100*b.st.Wave + b.st.Player.HP
	}
}

// ---- wave transitions ----

// RewardKind names a between-wave reward.
type RewardKind string

const (
	RewardHeal      RewardKind = "heal"
	RewardArmor     RewardKind = "armor"
	RewardRage      RewardKind = "rage"
	RewardAmmo      RewardKind = "ammo"
	RewardDamage    RewardKind = "damage"
	RewardExtraWord RewardKind = "extra_word"
	RewardLearn     RewardKind = "learn"
)

// Reward amounts.
const (
	RewardHealAmount   = 50
	RewardAmmoAmount   = 5
	RewardDamageAmount = 0.25
)

// Reward is the player's pick after a won wave. Word is required for learn.
type Reward struct {
	Kind RewardKind `json:"choice"`
	Word string     `json:"word,omitempty"`
}

// Spawner builds the enemy for a wave.
type Spawner interface {
	Spawn(wave int) (Combatant, error)
}

// AdvanceWave applies reward to the player, spawns the next enemy and
// returns to battle. Nothing changes on error.
func (b *Battle) AdvanceWave(reward Reward, spawn Spawner) error {
	if b.st.Phase != PhaseRewards {
		return apperr.Newf(apperr.KindNotInRewardsPhase, "phase is %s", b.st.Phase)
	}
	next := b.st.Clone()
	p := &next.Player

	switch reward.Kind {
	case RewardHeal:
		applyStat(p, statHP, RewardHealAmount)
	case RewardArmor:
		applyStat(p, statArmor, 1)
	case RewardRage:
		applyStat(p, statRage, 1)
	case RewardAmmo:
		applyStat(p, statAmmo, RewardAmmoAmount)
	case RewardDamage:
		p.DamageMod += RewardDamageAmount
	case RewardExtraWord:
		if next.Limits.MaxWordsPerTurn >= next.Limits.MaxWordsCap {
			return apperr.Newf(apperr.KindInvalidReward, "already at %d words per turn", next.Limits.MaxWordsCap)
		}
		next.Limits.MaxWordsPerTurn++
	case RewardLearn:
		key := strings.ToUpper(strings.TrimSpace(reward.Word))
		if key == "" {
			return apperr.New(apperr.KindInvalidReward, "learn needs a word")
		}
		if p.HasWord(key) {
			return apperr.Newf(apperr.KindInvalidReward, "%s is already in the pool", key)
		}
		p.Words = append(p.Words, key)
	default:
		return apperr.Newf(apperr.KindInvalidReward, "unknown reward %q", reward.Kind)
	}

	enemy, err := spawn.Spawn(next.Wave + 1)
	if err != nil {
		return fmt.Errorf("spawn wave %d: %w", next.Wave+1, err)
	}
	next.Wave++
	next.Enemy = enemy.clone()
	normalize(&next.Enemy)
	p.Cover = false
	next.Phase = PhaseBattle

	b.st = next
	b.checkInvariants()
	return nil
}

// LearnWord appends a word to the player's pool. It is refused once the run
// is over.
func (b *Battle) LearnWord(key string) error {
	if b.st.Phase == PhaseGameOver {
		return apperr.New(apperr.KindNotInBattlePhase, "run is over")
	}
	if slices.Contains(b.st.Player.Words, key) {
		return apperr.Newf(apperr.KindCustomWordInvalid, "%s is already in the pool", key)
	}
	b.st.Player.Words = append(b.st.Player.Words, key)
	return nil
}
