// internal/scores/store.go
//
// Finished-run results and the leaderboard (run_results table).
// A run is recorded once, when it ends in gameover; re-recording the same
// session is ignored.

package scores

import (
	"context"
	"database/sql"
	"time"
)

type Result struct {
	SessionID string `json:"sessionId"`
	Archetype string `json:"archetype"`
	Mode      string `json:"mode"`
	Date      string `json:"date"`
	Wave      int    `json:"wave"`
	Score     int    `json:"score"`
	Turns     int    `json:"turns"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) InsertResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO run_results
			(session_id, archetype, mode, date_key, wave, score, turns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Archetype, r.Mode, r.Date, r.Wave, r.Score, r.Turns, time.Now().UTC().UnixMilli(),
	)
	return err
}

type LBRow struct {
	SessionID string `json:"sessionId"`
	Archetype string `json:"archetype"`
	Mode      string `json:"mode"`
	Wave      int    `json:"wave"`
	Score     int    `json:"score"`
	Turns     int    `json:"turns"`
}

// Leaderboard returns the best runs for date: highest score, then furthest
// wave, then fewest turns, then earliest.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, archetype, mode, wave, score, turns
		FROM run_results
		WHERE date_key = ?
		ORDER BY score DESC, wave DESC, turns ASC, created_at ASC
		LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.SessionID, &r.Archetype, &r.Mode, &r.Wave, &r.Score, &r.Turns); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
