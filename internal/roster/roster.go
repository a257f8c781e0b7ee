// internal/roster/roster.go
//
// Archetype roster and enemy spawning.
//
// Player archetypes carry their full starting stats. Enemy archetypes only
// supply flavour (name, words, ammo, traits, distance); their hp, armor, rage
// and damage modifier come from the wave-driven difficulty curve, so every
// wave is strictly harder than the last whichever archetype it spawns.

package roster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/orkbattle/assets"
	"github.com/robalobadob/orkbattle/internal/game"
)

// Archetype is a roster entry.
type Archetype struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	HP        int      `yaml:"hp" json:"hp,omitempty"`
	Armor     int      `yaml:"armor" json:"armor,omitempty"`
	Rage      int      `yaml:"rage" json:"rage"`
	Ammo      int      `yaml:"ammo" json:"ammo"`
	DamageMod float64  `yaml:"damage_mod" json:"damageMod,omitempty"`
	Distance  string   `yaml:"distance" json:"distance"`
	Traits    []string `yaml:"traits" json:"traits"`
	Words     []string `yaml:"words" json:"words"`
}

// Difficulty is the enemy stat curve.
type Difficulty struct {
	BaseHP           int     `yaml:"base_hp"`
	HPPerWave        int     `yaml:"hp_per_wave"`
	DamageModPerWave float64 `yaml:"damage_mod_per_wave"`
	ArmorEvery       int     `yaml:"armor_every"`
	RageEvery        int     `yaml:"rage_every"`
}

// Roster holds both sides' archetypes.
type Roster struct {
	Difficulty Difficulty  `yaml:"difficulty"`
	Players    []Archetype `yaml:"players"`
	Enemies    []Archetype `yaml:"enemies"`
}

// ErrUnknownArchetype is returned for ids not in the roster.
var ErrUnknownArchetype = errors.New("roster: unknown archetype")

// Parse decodes and validates a roster file.
func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("roster: decode: %w", err)
	}
	if len(r.Players) == 0 || len(r.Enemies) == 0 {
		return nil, errors.New("roster: needs at least one player and one enemy")
	}
	if r.Difficulty.BaseHP <= 0 {
		return nil, errors.New("roster: difficulty.base_hp must be positive")
	}
	if r.Difficulty.HPPerWave <= 0 || r.Difficulty.DamageModPerWave < 0 {
		return nil, errors.New("roster: difficulty must grow with the wave")
	}
	if r.Difficulty.ArmorEvery <= 0 {
		r.Difficulty.ArmorEvery = 2
	}
	if r.Difficulty.RageEvery <= 0 {
		r.Difficulty.RageEvery = 2
	}
	for _, a := range r.Players {
		if a.ID == "" || a.HP <= 0 || len(a.Words) == 0 {
			return nil, fmt.Errorf("roster: player %q needs an id, hp and words", a.ID)
		}
	}
	for _, a := range r.Enemies {
		if a.ID == "" || len(a.Words) == 0 {
			return nil, fmt.Errorf("roster: enemy %q needs an id and words", a.ID)
		}
	}
	return &r, nil
}

// Default loads the embedded roster.
func Default() (*Roster, error) {
	data, err := assets.RosterYAML()
	if err != nil {
		return nil, fmt.Errorf("roster: read: %w", err)
	}
	return Parse(data)
}

// CheckWords reports the first archetype word that known rejects.
func (r *Roster) CheckWords(known func(string) bool) error {
	for _, list := range [][]Archetype{r.Players, r.Enemies} {
		for _, a := range list {
			for _, w := range a.Words {
				if !known(w) {
					return fmt.Errorf("roster: %s uses unknown word %s", a.ID, w)
				}
			}
		}
	}
	return nil
}

func find(list []Archetype, id string) (Archetype, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return Archetype{}, false
}

// Player builds the starting player combatant. An empty id picks the first
// archetype.
func (r *Roster) Player(id string) (game.Combatant, error) {
	a := r.Players[0]
	if id != "" {
		var ok bool
		if a, ok = find(r.Players, id); !ok {
			return game.Combatant{}, fmt.Errorf("%w: player %q", ErrUnknownArchetype, id)
		}
	}
	c := a.combatant("player")
	c.HP, c.HPMax = a.HP, a.HP
	c.Armor = a.Armor
	c.DamageMod = a.DamageMod
	if c.DamageMod == 0 {
		c.DamageMod = 1
	}
	return c, nil
}

// Enemy builds the enemy for wave using archetype id. An empty id follows
// the rotation.
func (r *Roster) Enemy(id string, wave int) (game.Combatant, error) {
	a := r.Enemies[rotation(wave, len(r.Enemies))]
	if id != "" {
		var ok bool
		if a, ok = find(r.Enemies, id); !ok {
			return game.Combatant{}, fmt.Errorf("%w: enemy %q", ErrUnknownArchetype, id)
		}
	}
	c := a.combatant("enemy-w" + strconv.Itoa(wave))
	r.Difficulty.apply(&c, wave)
	return c, nil
}

// Spawn implements game.Spawner with the rotation.
func (r *Roster) Spawn(wave int) (game.Combatant, error) {
	return r.Enemy("", wave)
}

func rotation(wave, n int) int {
	if wave < 1 {
		wave = 1
	}
	return (wave - 1) % n
}

func (d Difficulty) apply(c *game.Combatant, wave int) {
	w := max(wave, 1) - 1
	c.HPMax = d.BaseHP + d.HPPerWave*w
	c.HP = c.HPMax
	c.DamageMod = 1 + d.DamageModPerWave*float64(w)
	c.Armor = 1 + w/d.ArmorEvery
	c.Rage = 1 + w/d.RageEvery
}

func (a Archetype) combatant(id string) game.Combatant {
	return game.Combatant{
		ID:        id,
		Name:      a.Name,
		Archetype: a.ID,
		Rage:      max(a.Rage, 1),
		Ammo:      a.Ammo,
		Distance:  game.Distance(a.Distance),
		Words:     append([]string(nil), a.Words...),
		Traits:    append([]string{}, a.Traits...),
		Flags:     map[string]bool{},
	}
}
