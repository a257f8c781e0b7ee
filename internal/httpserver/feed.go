// internal/httpserver/feed.go
//
// Live turn feed over websockets.
//
// Feed implements session.Publisher: every resolved turn is pushed to the
// websocket clients watching that session. Publish never blocks the turn
// pipeline; a client that falls behind loses messages.

package httpserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/orkbattle/internal/game"
)

const (
	feedBuffer   = 16
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

type subscriber struct {
	send chan game.TurnResolution
}

// Feed fans resolutions out to websocket subscribers, per session.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish queues res for every subscriber of sessionID.
func (f *Feed) Publish(sessionID string, res game.TurnResolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[sessionID] {
		select {
		case sub.send <- res:
		default:
			log.Warn().Str("session", sessionID).Int("turn", res.Turn).Msg("feed subscriber behind, dropping turn")
		}
	}
}

func (f *Feed) subscribe(sessionID string) (*subscriber, func()) {
	sub := &subscriber{send: make(chan game.TurnResolution, feedBuffer)}
	f.mu.Lock()
	if f.subs[sessionID] == nil {
		f.subs[sessionID] = make(map[*subscriber]struct{})
	}
	f.subs[sessionID][sub] = struct{}{}
	f.mu.Unlock()

	return sub, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[sessionID], sub)
		if len(f.subs[sessionID]) == 0 {
			delete(f.subs, sessionID)
		}
	}
}

// subscribers reports how many clients watch sessionID.
func (f *Feed) subscribers(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[sessionID])
}

// handleFeed upgrades to a websocket and streams the session's turns.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.opts.Feed == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "feed_unavailable"})
		return
	}
	id := sessionID(r)
	if _, err := s.svc.Get(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == s.opts.ClientOrigin
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("feed upgrade failed")
		return
	}
	sub, unsubscribe := s.opts.Feed.subscribe(id)
	defer unsubscribe()
	defer conn.Close()

	// The read side only handles control frames and notices the client leaving.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case res := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(res); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
