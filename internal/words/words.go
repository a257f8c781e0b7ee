// internal/words/words.go
//
// Word Registry: the immutable catalogue of ork words the interpreter knows.
//
// Responsibilities:
//   - Load built-in word definitions from a YAML file (WORDS_FILE) or fall back
//     to the embedded assets/words.yaml.
//   - Validate every definition once at load time (key shape, role, effects).
//   - Serve lookups by canonical uppercase key.
//   - Accept player-submitted custom words (see custom.go); additions are
//     append-only, an existing definition is never replaced.
//
// Word shape:
//   - Built-in keys: uppercase letters and underscores, starting with a letter.
//   - Effects are a closed set of kinds interpreted by the game resolver.

package words

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/orkbattle/assets"
)

// Role classifies a word. Roles drive custom-word templates and cover.
type Role string

const (
	RoleRanged    Role = "ranged"
	RoleMelee     Role = "melee"
	RoleExplosive Role = "explosive"
	RoleDefense   Role = "defense"
	RoleUtility   Role = "utility"
	RoleFire      Role = "fire"
	RoleUltimate  Role = "ultimate"
)

var roles = []Role{RoleRanged, RoleMelee, RoleExplosive, RoleDefense, RoleUtility, RoleFire, RoleUltimate}

// ParseRole returns the role named by s (case-insensitive).
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, slices.Contains(roles, r)
}

// Resource is a stat a word can spend.
type Resource string

const (
	ResourceAmmo Resource = "ammo"
	ResourceRage Resource = "rage"
)

// Kind is the effect variant.
type Kind string

const (
	KindDamage   Kind = "damage"
	KindHeal     Kind = "heal"
	KindArmor    Kind = "armor"
	KindRage     Kind = "rage"
	KindAmmo     Kind = "ammo"
	KindCover    Kind = "cover"
	KindDistance Kind = "distance"
)

// Target is relative to the actor using the word.
type Target string

const (
	TargetSelf  Target = "self"
	TargetEnemy Target = "enemy"
)

// Effect is one micro-effect of a word branch.
// Amount is drawn uniformly from [Min, Max]. Chance gates the effect
// (percent, 0 = always).
type Effect struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Target   Target `json:"target" yaml:"target"`
	Min      int    `json:"min" yaml:"min"`
	Max      int    `json:"max" yaml:"max"`
	Chance   int    `json:"chance,omitempty" yaml:"chance,omitempty"`
	Distance string `json:"distance,omitempty" yaml:"distance,omitempty"`
}

// Word is an immutable word definition.
//
// A word resolves one of two exclusive branches: OnHit when the hit roll
// lands (and the backfire roll does not), OnMiss otherwise. OnMiss doubles as
// the penalty when the actor cannot pay the word's cost.
type Word struct {
	Key         string           `json:"key" yaml:"key"`
	Role        Role             `json:"role" yaml:"role"`
	Tags        []string         `json:"tags" yaml:"tags"`
	Cost        map[Resource]int `json:"cost,omitempty" yaml:"cost,omitempty"`
	HitChance   int              `json:"hitChance" yaml:"hit_chance"`
	Backfire    int              `json:"backfire,omitempty" yaml:"backfire,omitempty"`
	OnHit       []Effect         `json:"onHit" yaml:"on_hit"`
	OnMiss      []Effect         `json:"onMiss,omitempty" yaml:"on_miss,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Custom      bool             `json:"custom,omitempty" yaml:"-"`
}

// CostResources returns the cost resources in a stable order.
func (w Word) CostResources() []Resource {
	out := make([]Resource, 0, len(w.Cost))
	for r := range w.Cost {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func (w Word) clone() Word {
	c := w
	c.Tags = slices.Clone(w.Tags)
	c.OnHit = slices.Clone(w.OnHit)
	c.OnMiss = slices.Clone(w.OnMiss)
	if w.Cost != nil {
		c.Cost = make(map[Resource]int, len(w.Cost))
		for k, v := range w.Cost {
			c.Cost[k] = v
		}
	}
	return c
}

var (
	builtinKey = regexp.MustCompile(`^[A-Z][A-Z_]{0,15}$`)
	distances  = []string{"melee", "close", "medium", "far"}
)

// ErrUnknownWord is returned by Lookup for keys not in the registry.
var ErrUnknownWord = errors.New("words: unknown word")

// Registry is a concurrency-safe, append-only word catalogue.
type Registry struct {
	mu        sync.RWMutex
	words     map[string]Word
	profanity []string
}

// New builds a registry from definitions. Every definition is validated and
// keys must be unique.
func New(defs []Word, profanity []string) (*Registry, error) {
	r := &Registry{words: make(map[string]Word, len(defs))}
	for _, p := range profanity {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			r.profanity = append(r.profanity, p)
		}
	}
	for _, w := range defs {
		w.Key = strings.ToUpper(strings.TrimSpace(w.Key))
		if !builtinKey.MatchString(w.Key) {
			return nil, fmt.Errorf("words: invalid key %q", w.Key)
		}
		if err := validate(w); err != nil {
			return nil, fmt.Errorf("words: %s: %w", w.Key, err)
		}
		if _, dup := r.words[w.Key]; dup {
			return nil, fmt.Errorf("words: duplicate key %q", w.Key)
		}
		w = w.clone()
		sort.Strings(w.Tags)
		r.words[w.Key] = w
	}
	if len(r.words) == 0 {
		return nil, errors.New("words: registry is empty")
	}
	return r, nil
}

type file struct {
	Words []Word `yaml:"words"`
}

// Parse decodes a YAML word file.
func Parse(data []byte) ([]Word, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("words: decode: %w", err)
	}
	return f.Words, nil
}

// Load builds the registry from path, or from the embedded defaults when path
// is empty. The profanity list is always the embedded one.
func Load(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = assets.WordsYAML()
	}
	if err != nil {
		return nil, fmt.Errorf("words: read: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	banned, err := assets.ProfanityList()
	if err != nil {
		return nil, fmt.Errorf("words: profanity list: %w", err)
	}
	return New(defs, banned)
}

func validate(w Word) error {
	if !slices.Contains(roles, w.Role) {
		return fmt.Errorf("unknown role %q", w.Role)
	}
	if w.HitChance < 0 || w.HitChance > 100 {
		return fmt.Errorf("hit_chance %d out of range", w.HitChance)
	}
	if w.Backfire < 0 || w.Backfire > 100 {
		return fmt.Errorf("backfire %d out of range", w.Backfire)
	}
	for res, amt := range w.Cost {
		if res != ResourceAmmo && res != ResourceRage {
			return fmt.Errorf("unknown cost resource %q", res)
		}
		if amt < 0 {
			return fmt.Errorf("negative cost for %s", res)
		}
	}
	if len(w.OnHit) == 0 {
		return errors.New("on_hit is empty")
	}
	for _, e := range append(slices.Clone(w.OnHit), w.OnMiss...) {
		if err := validateEffect(e); err != nil {
			return err
		}
	}
	return nil
}

func validateEffect(e Effect) error {
	if e.Target != TargetSelf && e.Target != TargetEnemy {
		return fmt.Errorf("effect %s: unknown target %q", e.Kind, e.Target)
	}
	if e.Min > e.Max {
		return fmt.Errorf("effect %s: min %d > max %d", e.Kind, e.Min, e.Max)
	}
	if e.Chance < 0 || e.Chance > 100 {
		return fmt.Errorf("effect %s: chance %d out of range", e.Kind, e.Chance)
	}
	switch e.Kind {
	case KindDamage, KindHeal:
		if e.Min < 0 {
			return fmt.Errorf("effect %s: negative amount", e.Kind)
		}
	case KindArmor, KindRage, KindAmmo, KindCover:
	case KindDistance:
		if !slices.Contains(distances, e.Distance) {
			return fmt.Errorf("effect distance: unknown distance %q", e.Distance)
		}
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	return nil
}

// Lookup returns the definition for key.
func (r *Registry) Lookup(key string) (Word, error) {
	r.mu.RLock()
	w, ok := r.words[strings.ToUpper(key)]
	r.mu.RUnlock()
	if !ok {
		return Word{}, fmt.Errorf("%w: %s", ErrUnknownWord, key)
	}
	return w.clone(), nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.words[strings.ToUpper(key)]
	return ok
}

// All returns every registered word ordered by key.
func (r *Registry) All() []Word {
	r.mu.RLock()
	out := make([]Word, 0, len(r.words))
	for _, w := range r.words {
		out = append(out, w.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of registered words.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.words)
}
