// internal/httpserver/server.go
//
// HTTP server wiring for the ork battler.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, access log).
//   - Public endpoints: "/", "/health", "/words", "/leaderboard".
//   - Session endpoints: POST /sessions, POST /attach-session, GET /current-session.
//   - Battle endpoints (require a session token): /session-state, /command, /rewards,
//     /custom-words, /history, /feed.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - The session token is a signed JWT carried in the game-session cookie or
//     an Authorization bearer header.
//   - /feed is a websocket and is mounted outside the request timeout.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/orkbattle/internal/apperr"
	"github.com/robalobadob/orkbattle/internal/scores"
	"github.com/robalobadob/orkbattle/internal/session"
)

// Leaderboard lists the best finished runs of a day.
type Leaderboard interface {
	Leaderboard(ctx context.Context, date string, limit int) ([]scores.LBRow, error)
}

// Options configures a Server. Leaderboard and Feed are optional.
type Options struct {
	ClientOrigin string
	JWTSecret    string
	SessionTTL   time.Duration
	Leaderboard  Leaderboard
	Feed         *Feed
	Timeout      time.Duration
}

// Server bundles the router and the session controller.
type Server struct {
	r      *chi.Mux
	svc    *session.Service
	tokens tokens
	opts   Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(svc *session.Service, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	s := &Server{
		r:      chi.NewRouter(),
		svc:    svc,
		tokens: newTokens(opts.JWTSecret, opts.SessionTTL),
		opts:   opts,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(hlog.NewHandler(log.Logger))
	s.r.Use(hlog.AccessHandler(accessLog))
	s.r.Use(chimw.Recoverer)
	s.r.Use(cors(opts.ClientOrigin))

	// websocket: no timeout, no JSON content type
	s.r.With(s.requireSession).Get("/feed", s.handleFeed)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(opts.Timeout))
		r.Use(jsonContentType)

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"service":"orkbattle","endpoints":["/health","POST /sessions","POST /command","POST /rewards","GET /feed"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/words", s.handleWords)
		r.Get("/leaderboard", s.handleLeaderboard)

		// --- sessions ---
		r.Post("/sessions", s.handleStart)
		r.Post("/attach-session", s.handleAttach)

		// --- battle (session token required) ---
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/current-session", s.handleCurrentSession)
			r.Get("/session-state", s.handleSessionState)
			r.Get("/history", s.handleHistory)
			r.Post("/command", s.handleCommand)
			r.Post("/rewards", s.handleReward)
			r.Post("/custom-words", s.handleCustomWord)
		})
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: r.URL.Path})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

func accessLog(r *http.Request, status, size int, d time.Duration) {
	hlog.FromRequest(r).Info().
		Str("req_id", chimw.GetReqID(r.Context())).
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", d).
		Msg("request")
}

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------ responses ----------------------------------

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps a domain error onto its HTTP status. Unkinded errors are 500s
// and their text is not echoed to the client.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
		return
	}
	status := ae.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Warn().Err(err).Str("kind", string(ae.Kind)).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: string(ae.Kind), Message: ae.Message})
}

// decode reads a JSON body into v; an empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Wrap(apperr.KindInvalidRequest, "invalid json", err)
}
