package narrator

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalobadob/orkbattle/internal/apperr"
	"github.com/robalobadob/orkbattle/internal/game"
)

func request(allowSpeak bool) Request {
	player := game.Combatant{ID: "player", Name: "Grukk", HP: 100, HPMax: 100, Armor: 1, Rage: 1, DamageMod: 1}
	enemy := game.Combatant{ID: "enemy", Name: "Vell", HP: 80, HPMax: 80, Armor: 1, Rage: 1, DamageMod: 1,
		Words: []string{"DAKKA", "KRUMP", "TAKE_COVER"}}
	st := game.NewCombatState(player, enemy, 1234, game.Limits{MaxWordsPerTurn: 3, MaxWordsCap: 5})
	st.Phase = game.PhaseBattle
	return Request{SessionID: "s1", State: st, Turn: 1, PlayerWords: []string{"CHARGE"}, AllowSpeak: allowSpeak}
}

// narratorFunc adapts a function to Narrator.
type narratorFunc func(ctx context.Context, req Request) (Reply, error)

func (f narratorFunc) EnemyTurn(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }

func fastResilient(primary Narrator, retries int) *Resilient {
	r := NewResilient(primary, NewFallback(nil), 20*time.Millisecond, retries)
	r.interval = time.Millisecond
	return r
}

func TestParseReply(t *testing.T) {
	raw := "```yaml\nwords: [DAKKA, KRUMP]\ntext: Vell opens up.\nspeaks: [\"Hold!\"]\n```"
	r, err := parseReply(raw)
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	want := Reply{Words: []string{"DAKKA", "KRUMP"}, Text: "Vell opens up.", Speaks: []string{"Hold!"}}
	if !reflect.DeepEqual(r, want) {
		t.Fatalf("got %+v, want %+v", r, want)
	}

	if _, err := parseReply("text: nothing to do"); err == nil {
		t.Fatal("expected error for a reply without words")
	}
	if _, err := parseReply("words: [unclosed"); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestRenderPrompt(t *testing.T) {
	p, err := renderPrompt(request(false))
	if err != nil {
		t.Fatalf("renderPrompt: %v", err)
	}
	for _, want := range []string{"You are Vell", "- DAKKA", "- TAKE_COVER", "shouted: CHARGE", "speaks: []"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	p, _ = renderPrompt(request(true))
	if !strings.Contains(p, "battle cry") {
		t.Errorf("prompt should ask for speech when allowed:\n%s", p)
	}
}

func TestFallback_Deterministic(t *testing.T) {
	f := NewFallback(nil)
	req := request(true)

	a, err := f.EnemyTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	b, _ := f.EnemyTurn(context.Background(), req)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("fallback not deterministic: %+v vs %+v", a, b)
	}
	if n := len(a.Words); n < 1 || n > 3 {
		t.Fatalf("picked %d words", n)
	}
	for _, w := range a.Words {
		if !slices.Contains(req.State.Enemy.Words, w) {
			t.Fatalf("%s not in enemy pool", w)
		}
	}
	if len(a.Speaks) != 1 {
		t.Fatalf("expected one battle cry, got %v", a.Speaks)
	}
}

func TestFallback_Silent(t *testing.T) {
	r, err := NewFallback(nil).EnemyTurn(context.Background(), request(false))
	if err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	if len(r.Speaks) != 0 {
		t.Fatalf("speech not suppressed: %v", r.Speaks)
	}
}

func TestFallback_EmptyPool(t *testing.T) {
	req := request(false)
	req.State.Enemy.Words = nil
	_, err := NewFallback(nil).EnemyTurn(context.Background(), req)
	if !errors.Is(err, apperr.ErrInterpreter) {
		t.Fatalf("expected interpreter_error, got %v", err)
	}
}

func TestResilient_NoPrimaryUsesFallback(t *testing.T) {
	req := request(false)
	want, _ := NewFallback(nil).EnemyTurn(context.Background(), req)

	got, err := fastResilient(nil, 2).EnemyTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	if !reflect.DeepEqual(got.Words, want.Words) {
		t.Fatalf("got %v, want fallback %v", got.Words, want.Words)
	}
}

func TestResilient_PrimarySanitized(t *testing.T) {
	primary := narratorFunc(func(context.Context, Request) (Reply, error) {
		return Reply{Words: []string{"krump", "WAAAGH", "DAKKA", "KRUMP", "DAKKA"}, Text: "  Vell swings. ", Speaks: []string{"Die!"}}, nil
	})
	got, err := fastResilient(primary, 0).EnemyTurn(context.Background(), request(false))
	if err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	want := Reply{Words: []string{"KRUMP", "DAKKA", "KRUMP"}, Text: "Vell swings.", Speaks: []string{}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResilient_RetriesThenFallsBack(t *testing.T) {
	var calls atomic.Int32
	primary := narratorFunc(func(context.Context, Request) (Reply, error) {
		calls.Add(1)
		return Reply{}, errors.New("model overloaded")
	})
	req := request(false)
	want, _ := NewFallback(nil).EnemyTurn(context.Background(), req)

	got, err := fastResilient(primary, 2).EnemyTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("primary called %d times, want 3", n)
	}
	if !reflect.DeepEqual(got.Words, want.Words) {
		t.Fatalf("got %v, want fallback %v", got.Words, want.Words)
	}
}

func TestResilient_TimeoutPerAttempt(t *testing.T) {
	primary := narratorFunc(func(ctx context.Context, _ Request) (Reply, error) {
		<-ctx.Done()
		return Reply{}, ctx.Err()
	})
	start := time.Now()
	got, err := fastResilient(primary, 1).EnemyTurn(context.Background(), request(false))
	if err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	if len(got.Words) == 0 {
		t.Fatal("expected fallback words")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not enforced")
	}
}

func TestResilient_UnusableReplyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	primary := narratorFunc(func(context.Context, Request) (Reply, error) {
		calls.Add(1)
		return Reply{Words: []string{"PRAY"}}, nil
	})
	if _, err := fastResilient(primary, 3).EnemyTurn(context.Background(), request(false)); err != nil {
		t.Fatalf("EnemyTurn: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("primary called %d times, want 1", n)
	}
}

func TestResilient_CallerCancelled(t *testing.T) {
	primary := narratorFunc(func(ctx context.Context, _ Request) (Reply, error) {
		return Reply{}, errors.New("unreachable")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fastResilient(primary, 2).EnemyTurn(ctx, request(false))
	if !errors.Is(err, apperr.ErrInterpreter) {
		t.Fatalf("expected interpreter_error, got %v", err)
	}
}
