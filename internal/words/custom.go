// internal/words/custom.go
//
// Player-made words.
//
// Rules:
//   - Text is trimmed and uppercased, then must be 1-12 letters A-Z.
//   - Banned substrings come from assets/profanity.txt.
//   - The definition is the role template; the player only picks key and role.
//   - Registration is append-only: a known key keeps its definition.

package words

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/robalobadob/orkbattle/internal/apperr"
)

var customKey = regexp.MustCompile(`^[A-Z]{1,12}$`)

var upper = cases.Upper(language.Und)

// Normalize trims and uppercases raw player input.
func Normalize(raw string) string {
	return upper.String(strings.TrimSpace(raw))
}

// armorPenalty is the miss branch shared by every custom template.
var armorPenalty = []Effect{{Kind: KindArmor, Target: TargetSelf, Min: -1, Max: -1}}

// Template returns the definition a custom word of the given role receives.
// Key is left empty.
func Template(role Role) (Word, bool) {
	w := Word{Role: role, HitChance: 100, Tags: []string{"custom"}, Custom: true}
	switch role {
	case RoleRanged:
		w.HitChance = 70
		w.Cost = map[Resource]int{ResourceAmmo: 1}
		w.OnHit = []Effect{{Kind: KindDamage, Target: TargetEnemy, Min: 8, Max: 20}}
		w.OnMiss = armorPenalty
	case RoleMelee:
		w.HitChance = 80
		w.OnHit = []Effect{{Kind: KindDamage, Target: TargetEnemy, Min: 10, Max: 18}}
		w.OnMiss = armorPenalty
	case RoleExplosive:
		w.HitChance = 60
		w.Cost = map[Resource]int{ResourceAmmo: 2}
		w.OnHit = []Effect{{Kind: KindDamage, Target: TargetEnemy, Min: 15, Max: 30}}
		w.OnMiss = armorPenalty
	case RoleDefense:
		w.OnHit = []Effect{{Kind: KindArmor, Target: TargetSelf, Min: 1, Max: 1}}
		w.OnMiss = armorPenalty
	case RoleUtility:
		w.OnHit = []Effect{{Kind: KindHeal, Target: TargetSelf, Min: 15, Max: 15}}
		w.OnMiss = armorPenalty
	case RoleFire:
		w.HitChance = 75
		w.OnHit = []Effect{{Kind: KindDamage, Target: TargetEnemy, Min: 20, Max: 35}}
		w.OnMiss = []Effect{
			{Kind: KindDamage, Target: TargetSelf, Min: 10, Max: 10},
			armorPenalty[0],
		}
	case RoleUltimate:
		w.HitChance = 50
		w.Cost = map[Resource]int{ResourceRage: 2}
		w.OnHit = []Effect{{Kind: KindDamage, Target: TargetEnemy, Min: 30, Max: 60}}
		w.OnMiss = armorPenalty
	default:
		return Word{}, false
	}
	w.Tags = append(w.Tags, string(role))
	slices.Sort(w.Tags)
	return w.clone(), true
}

// ValidateCustomWord turns player text and a role into a word definition.
//
// The text is trimmed and uppercased, then must match ^[A-Z]{1,12}$, must not
// contain a banned substring and must not already be in pool. A key that is
// already registered is accepted only with the same role, and yields the
// registered definition.
func (r *Registry) ValidateCustomWord(raw, role string, pool []string) (Word, error) {
	key := Normalize(raw)
	if !customKey.MatchString(key) {
		return Word{}, apperr.Newf(apperr.KindCustomWordInvalid, "word %q must be 1-12 letters A-Z", raw)
	}
	for _, bad := range r.profanity {
		if strings.Contains(key, bad) {
			return Word{}, apperr.New(apperr.KindCustomWordInvalid, "word is not allowed")
		}
	}
	rl, ok := ParseRole(role)
	if !ok {
		return Word{}, apperr.Newf(apperr.KindCustomWordInvalid, "unknown role %q", role)
	}
	if slices.Contains(pool, key) {
		return Word{}, apperr.Newf(apperr.KindCustomWordInvalid, "%s is already in the pool", key)
	}
	if existing, err := r.Lookup(key); err == nil {
		if existing.Role != rl {
			return Word{}, apperr.Newf(apperr.KindCustomWordInvalid, "%s already exists as a %s word", key, existing.Role)
		}
		return existing, nil
	}
	w, _ := Template(rl)
	w.Key = key
	return w, nil
}

// Register adds a validated custom word. Registering a key that already
// exists with the same role is a no-op; a different role is rejected.
func (r *Registry) Register(w Word) error {
	if !customKey.MatchString(w.Key) && !builtinKey.MatchString(w.Key) {
		return apperr.Newf(apperr.KindCustomWordInvalid, "invalid key %q", w.Key)
	}
	if err := validate(w); err != nil {
		return apperr.Wrap(apperr.KindCustomWordInvalid, w.Key, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.words[w.Key]; ok {
		if existing.Role != w.Role {
			return apperr.Newf(apperr.KindCustomWordInvalid, "%s already exists as a %s word", w.Key, existing.Role)
		}
		return nil
	}
	r.words[w.Key] = w.clone()
	return nil
}
