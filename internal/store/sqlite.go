// internal/store/sqlite.go
//
// SQLite implementation of Store (tables from assets/migrations).
//
//   sessions(id, mode, turn, state_json, created_at, updated_at)
//   turns(session_id, turn, resolution_json, created_at)  PK(session_id, turn)
//   custom_words(key, role, created_at)
//
// States and resolutions are stored as JSON documents; the turn column
// mirrors state.turn so writes can be guarded with WHERE turn = ?.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/orkbattle/internal/game"
)

// SQLite stores sessions in a database opened with the sqlite3 driver.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

func (s *SQLite) Create(ctx context.Context, sess *Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	now := s.now().UTC().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, mode, turn, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Mode, sess.State.Turn, string(state), now, now,
	)
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sess             = &Session{ID: id}
		state            string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT mode, state_json, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.Mode, &state, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return nil, corruptState(id, err)
	}
	if err := checkState(sess.State); err != nil {
		return nil, corruptState(id, err)
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.UpdatedAt = time.UnixMilli(updated).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT resolution_json FROM turns WHERE session_id = ? ORDER BY turn ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: load turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var res game.TurnResolution
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, corruptState(id, fmt.Errorf("decode turn: %w", err))
		}
		sess.History = append(sess.History, res)
	}
	return sess, rows.Err()
}

func (s *SQLite) SaveState(ctx context.Context, id string, st game.CombatState) error {
	state, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state_json = ?, updated_at = ? WHERE id = ? AND turn = ?`,
		string(state), s.now().UTC().UnixMilli(), id, st.Turn,
	)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	return s.checkUpdated(ctx, s.db, res, id, st.Turn)
}

func (s *SQLite) AppendTurn(ctx context.Context, id string, r game.TurnResolution) error {
	state, err := json.Marshal(r.StateAfter)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode turn: %w", err)
	}
	now := s.now().UTC().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state_json = ?, turn = ?, updated_at = ? WHERE id = ? AND turn = ?`,
		string(state), r.Turn, now, id, r.Turn-1,
	)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if err := s.checkUpdated(ctx, tx, res, id, r.Turn); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, turn, resolution_json, created_at) VALUES (?, ?, ?, ?)`,
		id, r.Turn, string(body), now,
	); err != nil {
		return fmt.Errorf("store: insert turn: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) SaveCustomWord(ctx context.Context, w CustomWord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO custom_words (key, role, created_at) VALUES (?, ?, ?)`,
		w.Key, w.Role, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert custom word: %w", err)
	}
	return nil
}

func (s *SQLite) CustomWords(ctx context.Context) ([]CustomWord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, role FROM custom_words ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: load custom words: %w", err)
	}
	defer rows.Close()
	var out []CustomWord
	for rows.Next() {
		var w CustomWord
		if err := rows.Scan(&w.Key, &w.Role); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkUpdated tells a missing session apart from a stale turn guard.
func (s *SQLite) checkUpdated(ctx context.Context, q queryer, res sql.Result, id string, turn int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return err
	}
	return staleTurn(id, turn)
}
