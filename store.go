package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SavedGame is a named snapshot. List leaves State nil.
type SavedGame struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	SavedAt time.Time  `json:"saved_at"`
	State   *GameState `json:"state,omitempty"`
}

// SaveStore persists save slots.
type SaveStore interface {
	Save(ctx context.Context, name string, state *GameState) (string, error)
	Load(ctx context.Context, id string) (SavedGame, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]SavedGame, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type saveRow struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	SavedAt int64  `db:"saved_at"`
	State   string `db:"state"`
}

// sqlStore keeps saves in the saved_game table.
type sqlStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func newSQLStore(db *sqlx.DB, now func() time.Time) *sqlStore {
	return &sqlStore{db: db, now: now}
}

func (s *sqlStore) Save(ctx context.Context, name string, state *GameState) (string, error) {
	if name == "" {
		return "", ErrEmptySaveName
	}
	if state == nil {
		return "", ErrNoActiveGame
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO saved_game (id, name, saved_at, state) VALUES (?, ?, ?, ?)`,
		id, name, s.now().UnixMilli(), string(data))
	if err != nil {
		return "", fmt.Errorf("insert saved_game: %w", err)
	}
	LogDBState("after save " + name)
	return id, nil
}

func (s *sqlStore) Load(ctx context.Context, id string) (SavedGame, error) {
	var row saveRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, saved_at, state FROM saved_game WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedGame{}, fmt.Errorf("load %s: %w", id, ErrSaveNotFound)
	}
	if err != nil {
		return SavedGame{}, fmt.Errorf("load %s: %w", id, err)
	}

	var state GameState
	if err := json.Unmarshal([]byte(row.State), &state); err != nil {
		return SavedGame{}, fmt.Errorf("decode state of %s: %w", id, err)
	}
	return SavedGame{ID: row.ID, Name: row.Name, SavedAt: time.UnixMilli(row.SavedAt), State: &state}, nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_game WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrSaveNotFound)
	}
	LogDBState("after delete " + id)
	return nil
}

// List returns every save without its state, most recent first.
func (s *sqlStore) List(ctx context.Context) ([]SavedGame, error) {
	var rows []saveRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, name, saved_at FROM saved_game ORDER BY saved_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list saved games: %w", err)
	}
	saves := make([]SavedGame, len(rows))
	for i, r := range rows {
		saves[i] = SavedGame{ID: r.ID, Name: r.Name, SavedAt: time.UnixMilli(r.SavedAt)}
	}
	return saves, nil
}

// PruneBefore deletes saves older than cutoff and reports how many went.
func (s *sqlStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_game WHERE saved_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune saved games: %w", err)
	}
	return res.RowsAffected()
}
