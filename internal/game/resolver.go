// internal/game/resolver.go
//
// Action Resolver: turns one actor's ordered words into plan steps.
//
// For each word, in order:
//  1. Unknown keys become a no-op step.
//  2. The cost is checked against the actor as already changed by earlier
//     words this pass. An unpaid word fails and costs 1 armor instead.
//  3. The hit roll (and the backfire roll for words that have one) picks
//     exactly one branch: OnHit or OnMiss.
//  4. Each effect of the branch is interpreted by kind and applied to a
//     working copy, so later words see earlier results.
//
// The resolver never writes the caller's state; it returns steps whose
// deltas are the post-clamp changes for Battle.applyDeltas to replay.

package game

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/robalobadob/orkbattle/internal/words"
)

// Damage scaling per point of armor or rage above the floor of 1.
const (
	ArmorStep = 5
	RageStep  = 5
)

// WordSource resolves registry keys.
type WordSource interface {
	Lookup(key string) (words.Word, error)
}

// Resolver computes plan steps. It holds no mutable state.
type Resolver struct {
	words WordSource
	dice  Dice
}

// NewResolver returns a resolver; nil dice means SeededDice.
func NewResolver(src WordSource, dice Dice) *Resolver {
	if dice == nil {
		dice = SeededDice
	}
	return &Resolver{words: src, dice: dice}
}

// Resolve computes the steps for slot speaking keys during turn, against st.
func (r *Resolver) Resolve(st CombatState, slot Slot, turn int, keys []string) []PlanStep {
	work := st.Clone()
	actor := work.combatant(slot)
	foe := work.combatant(opponent(slot))

	steps := make([]PlanStep, 0, len(keys)+1)
	if actor.Cover {
		applyStat(actor, statCover, -1)
		steps = append(steps, PlanStep{
			Action:  "COVER",
			Target:  string(words.TargetSelf),
			Outcome: OutcomeExpired,
			Delta:   map[string]int{"self_cover": -1},
			Log:     fmt.Sprintf("%s breaks cover.", actor.Name),
			Tags:    []string{"cover"},
		})
	}
	for i, key := range keys {
		s := r.dice(StreamKey{Seed: st.Seed, Wave: st.Wave, Turn: turn, Slot: slot, Index: i})
		steps = append(steps, r.step(actor, foe, key, s))
	}
	return steps
}

var unpaidPenalty = []words.Effect{{Kind: words.KindArmor, Target: words.TargetSelf, Min: -1, Max: -1}}

func (r *Resolver) step(actor, foe *Combatant, key string, s Stream) PlanStep {
	step := PlanStep{Action: key, Target: string(words.TargetSelf), Delta: map[string]int{}, Tags: []string{}}

	w, err := r.words.Lookup(key)
	if err != nil {
		step.Outcome = OutcomeUnknown
		step.Log = fmt.Sprintf("%s shouts %s. Nothing happens.", actor.Name, key)
		return step
	}
	step.Tags = append(slices.Clone(w.Tags), string(w.Role))
	step.Target = string(primaryTarget(w))

	fx := &effector{actor: actor, foe: foe, role: w.Role, stream: s, delta: step.Delta}

	if short, ok := canPay(actor, w); !ok {
		step.Outcome = OutcomeUnpaid
		step.Log = describe(fmt.Sprintf("%s tries %s but has no %s left!", actor.Name, key, short), fx.applyAll(unpaidPenalty))
		return step
	}
	for _, res := range w.CostResources() {
		fx.change(actor, "self_", string(res), -w.Cost[res])
	}

	step.Outcome = OutcomeMiss
	if w.HitChance >= 100 || roll(s) < w.HitChance {
		step.Outcome = OutcomeHit
		if w.Backfire > 0 && roll(s) < w.Backfire {
			step.Outcome = OutcomeBackfire
		}
	}

	branch := w.OnMiss
	head := fmt.Sprintf("%s uses %s: misses!", actor.Name, key)
	switch step.Outcome {
	case OutcomeHit:
		branch = w.OnHit
		head = fmt.Sprintf("%s uses %s: hits!", actor.Name, key)
	case OutcomeBackfire:
		head = fmt.Sprintf("%s uses %s: it backfires!", actor.Name, key)
	}
	step.Log = describe(head, fx.applyAll(branch))
	return step
}

func canPay(c *Combatant, w words.Word) (words.Resource, bool) {
	for _, res := range w.CostResources() {
		amt := w.Cost[res]
		switch res {
		case words.ResourceAmmo:
			if c.Ammo-amt < 0 {
				return res, false
			}
		case words.ResourceRage:
			if c.Rage-amt < 1 {
				return res, false
			}
		}
	}
	return "", true
}

func primaryTarget(w words.Word) words.Target {
	for _, e := range w.OnHit {
		if e.Target == words.TargetEnemy {
			return words.TargetEnemy
		}
	}
	return words.TargetSelf
}

func describe(head string, parts []string) string {
	if len(parts) == 0 {
		return head
	}
	return head + " " + strings.Join(parts, ", ") + "."
}

// outgoing scales base damage by the attacker's rage and damage modifier.
func outgoing(attacker *Combatant, base int) int {
	raw := float64(base+(attacker.Rage-1)*RageStep) * attacker.DamageMod
	return max(int(math.Round(raw)), 0)
}

// mitigate reduces damage by the defender's cover and armor.
func mitigate(defender *Combatant, dmg int, role words.Role) int {
	if defender.Cover && role == words.RoleRanged {
		dmg /= 2
	}
	return max(dmg-(defender.Armor-1)*ArmorStep, 0)
}

// ---- effect interpreter ----

type effector struct {
	actor, foe *Combatant
	role       words.Role
	stream     Stream
	delta      map[string]int
}

func (fx *effector) applyAll(effects []words.Effect) []string {
	var parts []string
	for _, e := range effects {
		if e.Chance > 0 && roll(fx.stream) >= e.Chance {
			continue
		}
		if part := fx.apply(e); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func (fx *effector) apply(e words.Effect) string {
	target, prefix := fx.actor, "self_"
	if e.Target == words.TargetEnemy {
		target, prefix = fx.foe, "enemy_"
	}

	switch e.Kind {
	case words.KindDamage:
		dmg := between(fx.stream, e.Min, e.Max)
		if e.Target == words.TargetEnemy {
			dmg = mitigate(target, outgoing(fx.actor, dmg), fx.role)
		}
		got := fx.change(target, prefix, statHP, -dmg)
		return fmt.Sprintf("%s takes %d damage", target.Name, -got)
	case words.KindHeal:
		got := fx.change(target, prefix, statHP, between(fx.stream, e.Min, e.Max))
		return fmt.Sprintf("%s heals %d", target.Name, got)
	case words.KindArmor, words.KindRage, words.KindAmmo:
		got := fx.change(target, prefix, string(e.Kind), between(fx.stream, e.Min, e.Max))
		if got == 0 {
			return ""
		}
		return fmt.Sprintf("%s %s %+d", target.Name, e.Kind, got)
	case words.KindCover:
		switch got := fx.change(target, prefix, statCover, between(fx.stream, e.Min, e.Max)); {
		case got > 0:
			return fmt.Sprintf("%s takes cover", target.Name)
		case got < 0:
			return fmt.Sprintf("%s loses cover", target.Name)
		}
		return ""
	case words.KindDistance:
		want := Distance(e.Distance)
		if fx.change(target, prefix, statDistance, want.ordinal()-target.Distance.ordinal()) == 0 {
			return ""
		}
		return fmt.Sprintf("%s moves to %s range", target.Name, want)
	default:
		return ""
	}
}

// change applies one stat change to target and records the applied amount.
func (fx *effector) change(target *Combatant, prefix, stat string, v int) int {
	got := applyStat(target, stat, v)
	if got != 0 {
		k := prefix + stat
		fx.delta[k] += got
		if fx.delta[k] == 0 {
			delete(fx.delta, k)
		}
	}
	return got
}
