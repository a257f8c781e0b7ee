package game

import (
	"testing"

	"github.com/robalobadob/orkbattle/internal/words"
)

// scripted returns the queued values in order, then n-1 forever. A percentile
// roll of n-1 misses every word with a hit chance below 100.
type scripted struct {
	vals []int
	pos  int
}

func (s *scripted) IntN(n int) int {
	if s.pos >= len(s.vals) {
		return n - 1
	}
	v := s.vals[s.pos]
	s.pos++
	return min(v, n-1)
}

// script maps each actor's word index to its queued rolls.
type script map[Slot][][]int

func (sc script) dice(k StreamKey) Stream {
	rolls := sc[k.Slot]
	if k.Index >= 0 && k.Index < len(rolls) {
		return &scripted{vals: rolls[k.Index]}
	}
	return &scripted{}
}

func registry(t *testing.T) *words.Registry {
	t.Helper()
	r, err := words.Load("")
	if err != nil {
		t.Fatalf("words.Load: %v", err)
	}
	return r
}

func warboss() Combatant {
	return Combatant{
		ID: "player", Name: "Grukk", Archetype: "warboss",
		HP: 100, HPMax: 100, Armor: 1, Rage: 1, Ammo: 3, DamageMod: 1,
		Distance: DistanceMedium,
		Words:    []string{"SHOOT_ROCKET", "RAGE_UP", "PATCH_UP", "CHARGE", "THROW_GRENADE", "FLAMETHROWER", "KRUMP", "TAKE_COVER"},
	}
}

func guardsman() Combatant {
	return Combatant{
		ID: "enemy", Name: "Vell", Archetype: "guardsman",
		HP: 100, HPMax: 100, Armor: 1, Rage: 1, Ammo: 3, DamageMod: 1,
		Distance: DistanceFar,
		Words:    []string{"DAKKA", "KRUMP", "TAKE_COVER"},
	}
}

func battleState(p, e Combatant) CombatState {
	st := NewCombatState(p, e, 42, Limits{MaxWordsPerTurn: 3, MaxWordsCap: 5})
	st.Phase = PhaseBattle
	return st
}

func engineWith(t *testing.T, sc script) *Engine {
	t.Helper()
	return NewEngine(registry(t), WithDice(sc.dice))
}

type spawnFunc func(wave int) (Combatant, error)

func (f spawnFunc) Spawn(wave int) (Combatant, error) { return f(wave) }

func scalingSpawner() Spawner {
	return spawnFunc(func(wave int) (Combatant, error) {
		c := guardsman()
		c.HPMax = 80 + 20*(wave-1)
		c.HP = c.HPMax
		c.Armor = 1 + (wave-1)/2
		return c, nil
	})
}

func assertValid(t *testing.T, st CombatState) {
	t.Helper()
	for _, c := range []Combatant{st.Player, st.Enemy} {
		if c.HP < 0 || c.HP > c.HPMax {
			t.Fatalf("%s hp %d outside [0,%d]", c.ID, c.HP, c.HPMax)
		}
		if c.Armor < 1 || c.Rage < 1 || c.Ammo < 0 {
			t.Fatalf("%s stats out of range: armor=%d rage=%d ammo=%d", c.ID, c.Armor, c.Rage, c.Ammo)
		}
	}
	if want := DerivePhase(st); st.Phase != want && st.Phase != PhaseStart {
		t.Fatalf("phase %s, hp implies %s", st.Phase, want)
	}
}
