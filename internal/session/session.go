// internal/session/session.go
//
// Session/Phase Controller.
//
// Drives the coarse state machine around the turn engine:
//
//	Start        -> new run in battle phase, persisted
//	Submit       -> narrator picks enemy words, engine resolves, turn persisted
//	ChooseReward -> rewards phase only; applies the reward and spawns the next wave
//	AddCustomWord-> validates, registers, stores and learns a player word
//
// Custom words are written to the store; LoadCustomWords puts them back
// into a fresh registry when the process starts.
//
// Concurrency:
//   - Each session has its own mutex; at most one mutation runs per session.
//     A mutex lives in the table only while someone holds or waits on it.
//   - Concurrent identical submissions are collapsed with singleflight.
//   - Once a submission starts resolving it runs to completion even if the
//     caller goes away; a caller that is already gone never starts one.
//
// Idempotency: resubmitting an already resolved turn with the same words
// returns the stored resolution.

package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/robalobadob/orkbattle/internal/apperr"
	"github.com/robalobadob/orkbattle/internal/game"
	"github.com/robalobadob/orkbattle/internal/narrator"
	"github.com/robalobadob/orkbattle/internal/roster"
	"github.com/robalobadob/orkbattle/internal/scores"
	"github.com/robalobadob/orkbattle/internal/store"
	"github.com/robalobadob/orkbattle/internal/words"
)

const (
	ModeClassic = "classic"
	ModeDaily   = "daily"
)

// Recorder stores finished runs.
type Recorder interface {
	InsertResult(ctx context.Context, r scores.Result) error
}

// Publisher receives every resolved turn.
type Publisher interface {
	Publish(sessionID string, res game.TurnResolution)
}

// Deps are the collaborators of a Service. Results and Feed are optional.
type Deps struct {
	Store     store.Store
	Engine    *game.Engine
	Words     *words.Registry
	Roster    *roster.Roster
	Narrator  narrator.Narrator
	Results   Recorder
	Feed      Publisher
	DailySalt string
	Limits    game.Limits
	Now       func() time.Time
}

// Service is the session controller.
type Service struct {
	d      Deps
	mu     sync.Mutex
	locks  map[string]*sessionLock
	flight singleflight.Group
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{d: d, locks: make(map[string]*sessionLock)}
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// LoadCustomWords registers every stored custom word from its role
// template and returns how many were restored. A stored word that clashes
// with the registry is skipped.
func (s *Service) LoadCustomWords(ctx context.Context) (int, error) {
	stored, err := s.d.Store.CustomWords(ctx)
	if err != nil {
		return 0, fmt.Errorf("load custom words: %w", err)
	}
	n := 0
	for _, cw := range stored {
		role, _ := words.ParseRole(cw.Role)
		w, ok := words.Template(role)
		if !ok {
			log.Warn().Str("word", cw.Key).Str("role", cw.Role).Msg("stored custom word has an unknown role")
			continue
		}
		w.Key = cw.Key
		if err := s.d.Words.Register(w); err != nil {
			log.Warn().Err(err).Str("word", cw.Key).Msg("stored custom word skipped")
			continue
		}
		n++
	}
	return n, nil
}

// ---- start ----

// StartRequest configures a new run. Empty archetypes use roster defaults.
// Seed is honoured in classic mode only; daily runs use the date seed.
type StartRequest struct {
	Player string `json:"player"`
	Enemy  string `json:"enemy"`
	Mode   string `json:"mode"`
	Seed   *int64 `json:"seed,omitempty"`
}

// Start creates and persists a run in the battle phase.
func (s *Service) Start(ctx context.Context, req StartRequest) (*store.Session, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = ModeClassic
	}

	var seed int64
	switch {
	case mode == ModeDaily:
		seed = scores.DailySeed(s.d.Now(), s.d.DailySalt)
	case mode != ModeClassic:
		return nil, apperr.Newf(apperr.KindInvalidRequest, "unknown mode %q", req.Mode)
	case req.Seed != nil:
		seed = *req.Seed
	default:
		seed = rand.Int64()
	}

	player, err := s.d.Roster.Player(req.Player)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "player archetype", err)
	}
	enemy, err := s.d.Roster.Enemy(req.Enemy, 1)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "enemy archetype", err)
	}

	b := game.NewBattle(game.NewCombatState(player, enemy, seed, s.d.Limits))
	if err := b.Start(); err != nil {
		return nil, err
	}
	sess := &store.Session{ID: uuid.NewString(), Mode: mode, State: b.Snapshot()}
	if err := s.d.Store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("session", sess.ID).Str("mode", mode).Str("player", player.Archetype).
		Str("enemy", enemy.Archetype).Msg("session started")
	return s.d.Store.Get(ctx, sess.ID)
}

// Get returns a session with its history.
func (s *Service) Get(ctx context.Context, id string) (*store.Session, error) {
	return s.d.Store.Get(ctx, id)
}

// History returns the resolved turns of a session, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]game.TurnResolution, error) {
	sess, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.History == nil {
		return []game.TurnResolution{}, nil
	}
	return sess.History, nil
}

// Words lists the registry.
func (s *Service) Words() []words.Word {
	return s.d.Words.All()
}

// ---- turns ----

// SubmitRequest is one player turn. Turn 0 means "next": a retried request
// without a turn resolves another turn, so only requests that name their
// turn are idempotent.
type SubmitRequest struct {
	Turn            int      `json:"turn"`
	Words           []string `json:"words"`
	AllowEnemySpeak bool     `json:"allowEnemySpeak"`
}

// Submit resolves one turn.
func (s *Service) Submit(ctx context.Context, id string, req SubmitRequest) (game.TurnResolution, error) {
	if err := ctx.Err(); err != nil {
		return game.TurnResolution{}, err
	}
	key := fmt.Sprintf("%s|%d|%s|%t", id, req.Turn, strings.Join(game.NormalizeWords(req.Words), ","), req.AllowEnemySpeak)
	v, err, shared := s.flight.Do(key, func() (any, error) {
		return s.submit(context.WithoutCancel(ctx), id, req)
	})
	if err != nil {
		return game.TurnResolution{}, err
	}
	if shared {
		log.Debug().Str("session", id).Int("turn", req.Turn).Msg("duplicate submission collapsed")
	}
	return v.(game.TurnResolution), nil
}

func (s *Service) submit(ctx context.Context, id string, req SubmitRequest) (game.TurnResolution, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return game.TurnResolution{}, err
	}
	st := sess.State
	playerWords := game.NormalizeWords(req.Words)

	if req.Turn != 0 && req.Turn <= st.Turn {
		if prev, ok := sess.Resolution(req.Turn); ok && slices.Equal(prev.PlayerWords, playerWords) {
			return prev, nil
		}
		return game.TurnResolution{}, apperr.Newf(apperr.KindTurnAlreadyResolved, "turn %d already resolved", req.Turn)
	}
	if err := s.d.Engine.Validate(st, req.Turn, playerWords); err != nil {
		return game.TurnResolution{}, err
	}

	reply, err := s.d.Narrator.EnemyTurn(ctx, narrator.Request{
		SessionID:   id,
		State:       st,
		Turn:        st.Turn + 1,
		PlayerWords: playerWords,
		AllowSpeak:  req.AllowEnemySpeak,
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Wrap(apperr.KindInterpreterError, "enemy turn", err)
		}
		return game.TurnResolution{}, err
	}

	res, next, err := s.d.Engine.ResolveTurn(st, game.Submission{
		Turn:        req.Turn,
		PlayerWords: playerWords,
		Enemy:       reply.Intent(),
	})
	if err != nil {
		return game.TurnResolution{}, err
	}
	if err := s.d.Store.AppendTurn(ctx, id, res); err != nil {
		return game.TurnResolution{}, fmt.Errorf("persist turn %d: %w", res.Turn, err)
	}

	log.Info().Str("session", id).Int("turn", res.Turn).Int("wave", next.Wave).
		Str("phase", string(next.Phase)).Strs("player", res.PlayerWords).Strs("enemy", res.EnemyWords).
		Msg("turn resolved")

	if next.Phase == game.PhaseGameOver {
		s.record(ctx, sess, next)
	}
	if s.d.Feed != nil {
		s.d.Feed.Publish(id, res)
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, sess *store.Session, st game.CombatState) {
	if s.d.Results == nil {
		return
	}
	err := s.d.Results.InsertResult(ctx, scores.Result{
		SessionID: sess.ID,
		Archetype: st.Player.Archetype,
		Mode:      sess.Mode,
		Date:      scores.DateKey(s.d.Now()),
		Wave:      st.Wave,
		Score:     st.Score,
		Turns:     st.Turn,
	})
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("record result failed")
	}
}

// ---- between turns ----

// ChooseReward applies a reward and starts the next wave.
func (s *Service) ChooseReward(ctx context.Context, id string, reward game.Reward) (game.CombatState, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return game.CombatState{}, err
	}
	if reward.Kind == game.RewardLearn {
		reward.Word = words.Normalize(reward.Word)
		if !s.d.Words.Has(reward.Word) {
			return game.CombatState{}, apperr.Newf(apperr.KindInvalidReward, "unknown word %q", reward.Word)
		}
	}

	b := game.NewBattle(sess.State)
	if err := b.AdvanceWave(reward, s.d.Roster); err != nil {
		return game.CombatState{}, err
	}
	next := b.Snapshot()
	if err := s.d.Store.SaveState(ctx, id, next); err != nil {
		return game.CombatState{}, fmt.Errorf("persist reward: %w", err)
	}
	log.Info().Str("session", id).Str("reward", string(reward.Kind)).Int("wave", next.Wave).Msg("wave advanced")
	return next, nil
}

// AddCustomWord validates text as a word of role, registers it and adds it
// to the player's pool.
func (s *Service) AddCustomWord(ctx context.Context, id, text, role string) (words.Word, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return words.Word{}, err
	}
	w, err := s.d.Words.ValidateCustomWord(text, role, sess.State.Player.Words)
	if err != nil {
		return words.Word{}, err
	}

	b := game.NewBattle(sess.State)
	if err := b.LearnWord(w.Key); err != nil {
		return words.Word{}, err
	}
	if err := s.d.Words.Register(w); err != nil {
		return words.Word{}, err
	}
	if w.Custom {
		if err := s.d.Store.SaveCustomWord(ctx, store.CustomWord{Key: w.Key, Role: string(w.Role)}); err != nil {
			return words.Word{}, fmt.Errorf("persist custom word: %w", err)
		}
	}
	if err := s.d.Store.SaveState(ctx, id, b.Snapshot()); err != nil {
		return words.Word{}, fmt.Errorf("persist word pool: %w", err)
	}
	log.Info().Str("session", id).Str("word", w.Key).Str("role", string(w.Role)).Msg("custom word learned")
	return w, nil
}
