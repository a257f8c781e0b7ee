// internal/httpserver/routes.go
//
// Handlers for session, battle and listing endpoints. All of them delegate
// to the session controller and map its errors through writeErr.

package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/orkbattle/internal/game"
	"github.com/robalobadob/orkbattle/internal/scores"
	"github.com/robalobadob/orkbattle/internal/session"
	"github.com/robalobadob/orkbattle/internal/store"
	"github.com/robalobadob/orkbattle/internal/words"
)

// sessionRes is returned by session endpoints.
type sessionRes struct {
	SessionID string           `json:"sessionId"`
	Mode      string           `json:"mode"`
	Token     string           `json:"token,omitempty"`
	State     game.CombatState `json:"state"`
}

func toSessionRes(sess *store.Session, token string) sessionRes {
	return sessionRes{SessionID: sess.ID, Mode: sess.Mode, Token: token, State: sess.State}
}

// ------------------------------- sessions ----------------------------------

// handleStart creates a session and binds the client to it.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	sess, err := s.svc.Start(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	tok, err := s.issue(w, r, sess.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionRes(sess, tok))
}

type attachReq struct {
	SessionID string `json:"sessionId"`
}

// handleAttach binds the client to an existing session.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req attachReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("session")
	}
	sess, err := s.svc.Get(r.Context(), strings.TrimSpace(req.SessionID))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	tok, err := s.issue(w, r, sess.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionRes(sess, tok))
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID(r)})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Get(r.Context(), sessionID(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionRes(sess, ""))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.svc.History(r.Context(), sessionID(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// -------------------------------- battle -----------------------------------

// handleCommand resolves one turn.
//
// Body: {"turn": n, "words": [...], "allowEnemySpeak": bool}. turn is
// optional and defaults to the next turn, but a client that retries after
// losing a response must send it: replaying turn n with the same words
// returns the stored resolution, while a retry without turn resolves n+1.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req session.SubmitRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.svc.Submit(r.Context(), sessionID(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReward applies the chosen reward and starts the next wave.
func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	var req game.Reward
	if err := decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	st, err := s.svc.ChooseReward(r.Context(), sessionID(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st})
}

type customWordReq struct {
	Word string `json:"word"`
	Role string `json:"role"`
}

// handleCustomWord teaches the player a word of their own.
func (s *Server) handleCustomWord(w http.ResponseWriter, r *http.Request) {
	var req customWordReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	word, err := s.svc.AddCustomWord(r.Context(), sessionID(r), req.Word, req.Role)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, word)
}

// -------------------------------- listings ---------------------------------

func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	all := s.svc.Words()
	if role := r.URL.Query().Get("role"); role != "" {
		filtered := make([]words.Word, 0, len(all))
		for _, wd := range all {
			if string(wd.Role) == strings.ToLower(role) {
				filtered = append(filtered, wd)
			}
		}
		all = filtered
	}
	writeJSON(w, http.StatusOK, all)
}

// handleLeaderboard returns the top runs for ?date=YYYY-MM-DD (default today, UTC).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.opts.Leaderboard == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "leaderboard_unavailable"})
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = scores.DateKey(time.Now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "date must be YYYY-MM-DD"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	limit = min(limit, 100)
	rows, err := s.opts.Leaderboard.Leaderboard(r.Context(), date, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "rows": rows})
}
