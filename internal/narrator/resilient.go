// internal/narrator/resilient.go
//
// Resilient narrator: per-attempt timeout and exponential backoff around the
// primary (Gemini), then the seeded Fallback. Every reply is sanitized to the
// enemy's own pool and the per-turn word limit before the engine sees it.

package narrator

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/orkbattle/internal/apperr"
)

var errNoUsableWords = errors.New("narrator: no usable words in reply")

// Resilient bounds a primary narrator with a per-attempt timeout and a
// retry budget, then falls back. A nil primary always uses the fallback.
type Resilient struct {
	primary  Narrator
	fallback Narrator
	timeout  time.Duration
	retries  uint
	interval time.Duration
}

// NewResilient wraps primary. retries is the number of extra attempts.
func NewResilient(primary, fallback Narrator, timeout time.Duration, retries int) *Resilient {
	return &Resilient{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		retries:  uint(max(retries, 0)),
		interval: 200 * time.Millisecond,
	}
}

func (r *Resilient) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	b.MaxInterval = 4 * r.interval
	return b
}

func (r *Resilient) EnemyTurn(ctx context.Context, req Request) (Reply, error) {
	if r.primary != nil {
		reply, err := backoff.Retry(ctx, func() (Reply, error) {
			actx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			rep, err := r.primary.EnemyTurn(actx, req)
			if err != nil {
				return Reply{}, err
			}
			rep = sanitize(rep, req)
			if len(rep.Words) == 0 {
				return Reply{}, backoff.Permanent(errNoUsableWords)
			}
			return rep, nil
		},
			backoff.WithBackOff(r.backOff()),
			backoff.WithMaxTries(r.retries+1),
			backoff.WithNotify(func(err error, wait time.Duration) {
				log.Debug().Err(err).Str("session", req.SessionID).Dur("wait", wait).Msg("narrator retry")
			}),
		)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return Reply{}, apperr.Wrap(apperr.KindInterpreterError, "enemy turn cancelled", ctx.Err())
		}
		log.Warn().Err(err).Str("session", req.SessionID).Int("turn", req.Turn).Msg("narrator failed, using fallback")
	}

	rep, err := r.fallback.EnemyTurn(ctx, req)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Wrap(apperr.KindInterpreterError, "enemy turn", err)
		}
		return Reply{}, err
	}
	return sanitize(rep, req), nil
}

// sanitize keeps only the enemy's own words, at most the per-turn limit,
// and drops speech unless it is allowed.
func sanitize(rep Reply, req Request) Reply {
	limit := max(req.State.Limits.MaxWordsPerTurn, 1)
	out := Reply{Text: strings.TrimSpace(rep.Text), Words: []string{}, Speaks: []string{}}
	for _, w := range rep.Words {
		w = strings.ToUpper(strings.TrimSpace(w))
		if slices.Contains(req.State.Enemy.Words, w) && len(out.Words) < limit {
			out.Words = append(out.Words, w)
		}
	}
	if req.AllowSpeak {
		for _, s := range rep.Speaks {
			if s = strings.TrimSpace(s); s != "" {
				out.Speaks = append(out.Speaks, s)
			}
		}
	}
	return out
}
