package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalobadob/orkbattle/internal/apperr"
	"github.com/robalobadob/orkbattle/internal/game"
	"github.com/robalobadob/orkbattle/internal/narrator"
	"github.com/robalobadob/orkbattle/internal/roster"
	"github.com/robalobadob/orkbattle/internal/scores"
	"github.com/robalobadob/orkbattle/internal/store"
	"github.com/robalobadob/orkbattle/internal/words"
)

// lowRolls always rolls 0: every word lands for its minimum.
type lowRolls struct{}

func (lowRolls) IntN(int) int { return 0 }

type fakeNarrator struct {
	calls atomic.Int32
	reply narrator.Reply
	err   error
	delay time.Duration
}

func (f *fakeNarrator) EnemyTurn(ctx context.Context, req narrator.Request) (narrator.Reply, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.reply, f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []scores.Result
}

func (f *fakeRecorder) InsertResult(_ context.Context, r scores.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

type fakeFeed struct {
	mu   sync.Mutex
	sent []int
}

func (f *fakeFeed) Publish(_ string, res game.TurnResolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, res.Turn)
}

type fixture struct {
	svc      *Service
	store    store.Store
	narrator *fakeNarrator
	results  *fakeRecorder
	feed     *fakeFeed
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := words.Load("")
	if err != nil {
		t.Fatal(err)
	}
	ros, err := roster.Default()
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		store:    store.NewMemoryStore(),
		narrator: &fakeNarrator{reply: narrator.Reply{Words: []string{"DAKKA"}, Text: "Vell fires.", Speaks: []string{}}},
		results:  &fakeRecorder{},
		feed:     &fakeFeed{},
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(Deps{
		Store:     f.store,
		Engine:    game.NewEngine(reg, game.WithDice(func(game.StreamKey) game.Stream { return lowRolls{} })),
		Words:     reg,
		Roster:    ros,
		Narrator:  f.narrator,
		Results:   f.results,
		Feed:      f.feed,
		DailySalt: "test_salt",
		Limits:    game.Limits{MaxWordsPerTurn: 3, MaxWordsCap: 5},
		Now:       func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) start(t *testing.T) *store.Session {
	t.Helper()
	seed := int64(5)
	sess, err := f.svc.Start(context.Background(), StartRequest{Seed: &seed})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return sess
}

// rig edits the stored state between turns.
func (f *fixture) rig(t *testing.T, id string, edit func(*game.CombatState)) {
	t.Helper()
	sess, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	edit(&sess.State)
	if err := f.store.SaveState(context.Background(), id, sess.State); err != nil {
		t.Fatal(err)
	}
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	st := sess.State
	if st.Phase != game.PhaseBattle || st.Turn != 0 || st.Wave != 1 || st.Seed != 5 {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.Player.Archetype != "warboss" || st.Enemy.Archetype != "guardsman" {
		t.Fatalf("player=%s enemy=%s", st.Player.Archetype, st.Enemy.Archetype)
	}
	if sess.Mode != ModeClassic || sess.ID == "" {
		t.Fatalf("mode=%s id=%q", sess.Mode, sess.ID)
	}
}

func TestStart_Daily(t *testing.T) {
	f := newFixture(t)
	seed := int64(1)
	sess, err := f.svc.Start(context.Background(), StartRequest{Mode: "daily", Player: "meganob", Enemy: "space_marine", Seed: &seed})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if want := scores.DailySeed(f.now, "test_salt"); sess.State.Seed != want {
		t.Fatalf("seed = %d, want daily seed %d", sess.State.Seed, want)
	}
	if sess.State.Player.Archetype != "meganob" || sess.State.Enemy.Archetype != "space_marine" {
		t.Fatalf("archetypes not honoured: %+v", sess.State)
	}
}

func TestStart_Rejects(t *testing.T) {
	f := newFixture(t)
	for _, req := range []StartRequest{{Mode: "arcade"}, {Player: "grot"}, {Enemy: "tyranid"}} {
		if _, err := f.svc.Start(context.Background(), req); !errors.Is(err, apperr.ErrInvalidRequest) {
			t.Errorf("%+v: expected invalid_request, got %v", req, err)
		}
	}
}

func TestSubmit_ResolvesAndPersists(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	res, err := f.svc.Submit(context.Background(), sess.ID, SubmitRequest{Words: []string{"charge"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Turn != 1 || !reflect.DeepEqual(res.EnemyWords, []string{"DAKKA"}) {
		t.Fatalf("turn=%d enemy=%v", res.Turn, res.EnemyWords)
	}
	if res.StateAfter.Enemy.HP != 30 || res.StateAfter.Player.HP != 80 {
		t.Fatalf("enemy hp=%d player hp=%d", res.StateAfter.Enemy.HP, res.StateAfter.Player.HP)
	}
	if res.EnemyPlan.Text != "Vell fires." {
		t.Errorf("enemy text = %q", res.EnemyPlan.Text)
	}

	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.State.Turn != 1 || len(got.History) != 1 {
		t.Fatalf("persisted turn=%d history=%d", got.State.Turn, len(got.History))
	}
	if len(f.feed.sent) != 1 || f.feed.sent[0] != 1 {
		t.Fatalf("feed = %v", f.feed.sent)
	}
}

func TestSubmit_Idempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Turn: 1, Words: []string{"CHARGE"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	again, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Turn: 1, Words: []string{"CHARGE"}})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !reflect.DeepEqual(first, again) {
		t.Fatal("resubmission returned a different resolution")
	}
	if n := f.narrator.calls.Load(); n != 1 {
		t.Fatalf("narrator called %d times, want 1", n)
	}

	if _, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Turn: 1, Words: []string{"RAGE_UP"}}); !errors.Is(err, apperr.ErrTurnAlreadyResolved) {
		t.Fatalf("different words: %v", err)
	}
	if _, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Turn: 3, Words: []string{"RAGE_UP"}}); !errors.Is(err, apperr.ErrTurnOutOfOrder) {
		t.Fatalf("skipped turn: %v", err)
	}
	hist, _ := f.svc.History(ctx, sess.ID)
	if len(hist) != 1 {
		t.Fatalf("history = %d turns", len(hist))
	}
}

func TestSubmit_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	f.narrator.delay = 20 * time.Millisecond
	sess := f.start(t)

	const n = 8
	var wg sync.WaitGroup
	out := make([]game.TurnResolution, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i], errs[i] = f.svc.Submit(context.Background(), sess.ID, SubmitRequest{Turn: 1, Words: []string{"CHARGE"}})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if !reflect.DeepEqual(out[i], out[0]) {
			t.Fatalf("submit %d saw a different resolution", i)
		}
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.State.Turn != 1 || len(got.History) != 1 {
		t.Fatalf("turn=%d history=%d", got.State.Turn, len(got.History))
	}
}

func TestSubmit_InvalidWordsSkipNarrator(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	_, err := f.svc.Submit(context.Background(), sess.ID, SubmitRequest{Words: []string{"WAAAGH"}})
	if !errors.Is(err, apperr.ErrInvalidWordSelection) {
		t.Fatalf("expected invalid_word_selection, got %v", err)
	}
	if n := f.narrator.calls.Load(); n != 0 {
		t.Fatalf("narrator called %d times", n)
	}
}

func TestSubmit_NarratorFailure(t *testing.T) {
	f := newFixture(t)
	f.narrator.err = errors.New("connection refused")
	sess := f.start(t)

	_, err := f.svc.Submit(context.Background(), sess.ID, SubmitRequest{Words: []string{"CHARGE"}})
	if !errors.Is(err, apperr.ErrInterpreter) {
		t.Fatalf("expected interpreter_error, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.State.Turn != 0 {
		t.Fatal("failed turn was persisted")
	}
}

func TestSubmit_UnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), "missing", SubmitRequest{Words: []string{"CHARGE"}})
	if !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Fatalf("expected session_not_found, got %v", err)
	}
}

func TestSubmit_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Words: []string{"CHARGE"}}); err == nil {
		t.Fatal("expected an error for a cancelled caller")
	}
	got, _ := f.svc.Get(context.Background(), sess.ID)
	if got.State.Turn != 0 || f.narrator.calls.Load() != 0 {
		t.Fatal("cancelled submission was started")
	}
}

func TestSubmit_GameOverRecordsResult(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	f.rig(t, sess.ID, func(st *game.CombatState) { st.Player.HP = 1 })

	res, err := f.svc.Submit(context.Background(), sess.ID, SubmitRequest{Words: []string{"CHARGE"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.StateAfter.Phase != game.PhaseGameOver || !res.End.PlayerDefeated {
		t.Fatalf("phase=%s end=%+v", res.StateAfter.Phase, res.End)
	}
	if len(f.results.results) != 1 {
		t.Fatalf("recorded %d results", len(f.results.results))
	}
	r := f.results.results[0]
	if r.SessionID != sess.ID || r.Archetype != "warboss" || r.Date != "2026-05-01" || r.Turns != 1 {
		t.Fatalf("result = %+v", r)
	}

	if _, err := f.svc.Submit(context.Background(), sess.ID, SubmitRequest{Words: []string{"CHARGE"}}); !errors.Is(err, apperr.ErrNotInBattlePhase) {
		t.Fatalf("submit after gameover: %v", err)
	}
}

func TestChooseReward(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.ChooseReward(ctx, sess.ID, game.Reward{Kind: game.RewardHeal}); !errors.Is(err, apperr.ErrNotInRewardsPhase) {
		t.Fatalf("reward during battle: %v", err)
	}

	f.rig(t, sess.ID, func(st *game.CombatState) { st.Enemy.HP = 1 })
	res, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Words: []string{"CHARGE"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.StateAfter.Phase != game.PhaseRewards || res.StateAfter.Score != 100+80 {
		t.Fatalf("phase=%s score=%d", res.StateAfter.Phase, res.StateAfter.Score)
	}

	if _, err := f.svc.ChooseReward(ctx, sess.ID, game.Reward{Kind: game.RewardLearn, Word: "PRAYER"}); !errors.Is(err, apperr.ErrInvalidReward) {
		t.Fatalf("learn unknown word: %v", err)
	}
	st, err := f.svc.ChooseReward(ctx, sess.ID, game.Reward{Kind: game.RewardLearn, Word: "dakka"})
	if err != nil {
		t.Fatalf("ChooseReward: %v", err)
	}
	if st.Wave != 2 || st.Phase != game.PhaseBattle || !st.Player.HasWord("DAKKA") {
		t.Fatalf("wave=%d phase=%s words=%v", st.Wave, st.Phase, st.Player.Words)
	}
	if st.Enemy.HPMax != 100 || st.Enemy.Archetype != "grot_mob" {
		t.Fatalf("wave 2 enemy = %+v", st.Enemy)
	}
	if len(f.results.results) != 0 {
		t.Fatal("a won wave must not record a finished run")
	}
}

func TestAddCustomWord(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.AddCustomWord(ctx, sess.ID, "dakka!", "ranged"); !errors.Is(err, apperr.ErrCustomWordInvalid) {
		t.Fatalf("expected custom_word_invalid, got %v", err)
	}
	w, err := f.svc.AddCustomWord(ctx, sess.ID, "zoggit", "melee")
	if err != nil {
		t.Fatalf("AddCustomWord: %v", err)
	}
	if w.Key != "ZOGGIT" || !w.Custom {
		t.Fatalf("word = %+v", w)
	}
	if _, err := f.svc.AddCustomWord(ctx, sess.ID, "ZOGGIT", "melee"); !errors.Is(err, apperr.ErrCustomWordInvalid) {
		t.Fatalf("duplicate in pool: %v", err)
	}

	res, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Words: []string{"ZOGGIT"}})
	if err != nil {
		t.Fatalf("Submit custom word: %v", err)
	}
	if step := res.PlayerPlan.Steps[0]; step.Outcome != game.OutcomeHit || step.Delta["enemy_hp"] != -10 {
		t.Fatalf("custom word step = %+v", step)
	}
}

func TestSubmit_WithoutTurnResolvesNext(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		res, err := f.svc.Submit(ctx, sess.ID, SubmitRequest{Words: []string{"CHARGE"}})
		if err != nil {
			t.Fatalf("Submit %d: %v", want, err)
		}
		if res.Turn != want {
			t.Fatalf("turn = %d, want %d", res.Turn, want)
		}
	}
	if n := f.narrator.calls.Load(); n != 2 {
		t.Fatalf("narrator called %d times, want 2", n)
	}
}

func TestAddCustomWord_SurvivesRestart(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.AddCustomWord(ctx, sess.ID, "zoggit", "melee"); err != nil {
		t.Fatalf("AddCustomWord: %v", err)
	}
	if err := f.store.SaveCustomWord(ctx, store.CustomWord{Key: "GRAWK", Role: "psychic"}); err != nil {
		t.Fatal(err)
	}

	fresh, err := words.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Has("ZOGGIT") {
		t.Fatal("fresh registry already knows ZOGGIT")
	}
	d := f.svc.d
	d.Words = fresh
	d.Engine = game.NewEngine(fresh, game.WithDice(func(game.StreamKey) game.Stream { return lowRolls{} }))
	restarted := New(d)

	n, err := restarted.LoadCustomWords(ctx)
	if err != nil {
		t.Fatalf("LoadCustomWords: %v", err)
	}
	if n != 1 || !fresh.Has("ZOGGIT") || fresh.Has("GRAWK") {
		t.Fatalf("restored %d words", n)
	}

	res, err := restarted.Submit(ctx, sess.ID, SubmitRequest{Turn: 1, Words: []string{"ZOGGIT"}})
	if err != nil {
		t.Fatalf("Submit after restart: %v", err)
	}
	if step := res.PlayerPlan.Steps[0]; step.Outcome != game.OutcomeHit || step.Delta["enemy_hp"] != -10 {
		t.Fatalf("custom word step after restart = %+v", step)
	}
}

func TestLocksReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.start(t), f.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, word := a.ID, "CHARGE"
			if i%2 == 1 {
				id = b.ID
			}
			if i%4 >= 2 {
				word = "RAGE_UP"
			}
			_, _ = f.svc.Submit(ctx, id, SubmitRequest{Turn: 1, Words: []string{word}})
			_, _ = f.svc.ChooseReward(ctx, id, game.Reward{Kind: game.RewardHeal})
		}(i)
	}
	wg.Wait()

	f.svc.mu.Lock()
	left := len(f.svc.locks)
	f.svc.mu.Unlock()
	if left != 0 {
		t.Fatalf("%d session locks left after all callers returned", left)
	}
	for _, id := range []string{a.ID, b.ID} {
		got, _ := f.svc.Get(ctx, id)
		if got.State.Turn != 1 || len(got.History) != 1 {
			t.Fatalf("%s: turn=%d history=%d", id, got.State.Turn, len(got.History))
		}
	}
}
