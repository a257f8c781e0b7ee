// internal/game/types.go
//
// Core type definitions for the turn resolution engine.
// Defines:
//   - Phase: coarse session state (start/battle/rewards/gameover).
//   - Combatant: one side of the fight (player or enemy).
//   - CombatState: the authoritative state a turn is resolved against.
//   - PlanStep / Plan: the resolved micro-effects of one actor's words.
//   - TurnResolution: the immutable record of one resolved turn.
//
// JSON field names are the wire format shared with clients.

package game

import (
	"maps"
	"slices"
)

// Phase is the coarse session state.
//
//	start -> battle -> rewards -> battle ...
//	              \-> gameover (terminal)
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseBattle   Phase = "battle"
	PhaseRewards  Phase = "rewards"
	PhaseGameOver Phase = "gameover"
)

// Distance is how far a combatant stands from the fight.
type Distance string

const (
	DistanceMelee  Distance = "melee"
	DistanceClose  Distance = "close"
	DistanceMedium Distance = "medium"
	DistanceFar    Distance = "far"
)

var distanceOrder = []Distance{DistanceMelee, DistanceClose, DistanceMedium, DistanceFar}

func (d Distance) ordinal() int {
	if i := slices.Index(distanceOrder, d); i >= 0 {
		return i
	}
	return slices.Index(distanceOrder, DistanceMedium)
}

// Slot identifies an actor within a CombatState.
type Slot int

const (
	SlotPlayer Slot = iota
	SlotEnemy
)

func (s Slot) String() string {
	if s == SlotEnemy {
		return "enemy"
	}
	return "player"
}

// Combatant is one side of the fight.
//
// Invariants after every applied delta: 0 <= HP <= HPMax, Armor >= 1,
// Rage >= 1, Ammo >= 0. Words is an ordered set of registry keys.
type Combatant struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Archetype string          `json:"archetype"`
	HP        int             `json:"hp"`
	HPMax     int             `json:"hpMax"`
	Armor     int             `json:"armor"`
	Rage      int             `json:"rage"`
	Ammo      int             `json:"ammo"`
	DamageMod float64         `json:"damageMod"`
	Cover     bool            `json:"cover"`
	Distance  Distance        `json:"distance"`
	Words     []string        `json:"words"`
	Traits    []string        `json:"traits"`
	Flags     map[string]bool `json:"flags"`
}

// HasWord reports whether key is in the combatant's pool.
func (c Combatant) HasWord(key string) bool {
	return slices.Contains(c.Words, key)
}

func (c Combatant) clone() Combatant {
	out := c
	out.Words = slices.Clone(c.Words)
	out.Traits = slices.Clone(c.Traits)
	out.Flags = maps.Clone(c.Flags)
	if out.Words == nil {
		out.Words = []string{}
	}
	if out.Traits == nil {
		out.Traits = []string{}
	}
	if out.Flags == nil {
		out.Flags = map[string]bool{}
	}
	return out
}

// Limits bounds how many words a player may submit.
type Limits struct {
	MaxWordsPerTurn int `json:"maxWordsPerTurn"`
	MaxWordsCap     int `json:"maxWordsCap"`
}

// DefaultLimits are used when a state is created with zero limits.
var DefaultLimits = Limits{MaxWordsPerTurn: 3, MaxWordsCap: 5}

// CombatState is the authoritative state of one run.
// Turn counts resolved turns; the next submission resolves Turn+1.
type CombatState struct {
	Player Combatant `json:"player"`
	Enemy  Combatant `json:"enemy"`
	Turn   int       `json:"turn"`
	Seed   int64     `json:"seed"`
	Wave   int       `json:"wave"`
	Score  int       `json:"score"`
	Phase  Phase     `json:"phase"`
	Limits Limits    `json:"limits"`
}

// Clone returns a deep copy.
func (s CombatState) Clone() CombatState {
	out := s
	out.Player = s.Player.clone()
	out.Enemy = s.Enemy.clone()
	return out
}

func (s *CombatState) combatant(slot Slot) *Combatant {
	if slot == SlotEnemy {
		return &s.Enemy
	}
	return &s.Player
}

// NewCombatState builds a wave-1 state in the start phase.
func NewCombatState(player, enemy Combatant, seed int64, limits Limits) CombatState {
	if limits.MaxWordsPerTurn <= 0 {
		limits.MaxWordsPerTurn = DefaultLimits.MaxWordsPerTurn
	}
	if limits.MaxWordsCap < limits.MaxWordsPerTurn {
		limits.MaxWordsCap = max(DefaultLimits.MaxWordsCap, limits.MaxWordsPerTurn)
	}
	st := CombatState{
		Player: player.clone(),
		Enemy:  enemy.clone(),
		Seed:   seed,
		Wave:   1,
		Phase:  PhaseStart,
		Limits: limits,
	}
	normalize(&st.Player)
	normalize(&st.Enemy)
	return st
}

// normalize pulls a freshly built combatant into its valid ranges.
func normalize(c *Combatant) {
	if c.HPMax <= 0 {
		c.HPMax = 1
	}
	c.HP = clamp(c.HP, 0, c.HPMax)
	c.Armor = max(c.Armor, 1)
	c.Rage = max(c.Rage, 1)
	c.Ammo = max(c.Ammo, 0)
	c.DamageMod = max(c.DamageMod, 0)
	if c.Distance == "" {
		c.Distance = DistanceMedium
	}
}

// DerivePhase returns the phase implied by hit points. Player defeat wins
// ties: both at 0 is gameover.
func DerivePhase(s CombatState) Phase {
	switch {
	case s.Player.HP == 0:
		return PhaseGameOver
	case s.Enemy.HP == 0:
		return PhaseRewards
	default:
		return PhaseBattle
	}
}

// PlanStep is one resolved micro-effect.
//
// Delta keys are relative to the acting combatant: "self_hp", "enemy_hp",
// "self_armor", "self_rage", "self_ammo", "self_cover", "self_distance" and
// their "enemy_" counterparts. Values are the changes actually applied after
// clamping. Cover is +1/-1; distance is the change in ordinal
// (melee=0 .. far=3).
type PlanStep struct {
	Action  string         `json:"action"`
	Target  string         `json:"target"`
	Outcome Outcome        `json:"outcome"`
	Delta   map[string]int `json:"delta"`
	Log     string         `json:"log"`
	Tags    []string       `json:"tags"`
}

// Outcome labels how a step resolved.
type Outcome string

const (
	OutcomeHit      Outcome = "hit"
	OutcomeMiss     Outcome = "miss"
	OutcomeBackfire Outcome = "backfire"
	OutcomeUnpaid   Outcome = "unpaid"
	OutcomeUnknown  Outcome = "unknown"
	OutcomeExpired  Outcome = "expired"
)

// Plan is one actor's resolved turn.
type Plan struct {
	Text   string     `json:"text"`
	Steps  []PlanStep `json:"steps"`
	Speaks []string   `json:"speaks"`
}

// EndFlags report which sides reached 0 hp this turn.
type EndFlags struct {
	EnemyDefeated  bool `json:"enemyDefeated"`
	PlayerDefeated bool `json:"playerDefeated"`
}

// TurnResolution is the immutable record of one turn.
type TurnResolution struct {
	Turn        int         `json:"turn"`
	PlayerWords []string    `json:"playerWords"`
	EnemyWords  []string    `json:"enemyWords"`
	PlayerPlan  Plan        `json:"playerPlan"`
	EnemyPlan   Plan        `json:"enemyPlan"`
	Log         []string    `json:"log"`
	StateAfter  CombatState `json:"stateAfter"`
	End         EndFlags    `json:"end"`
}
