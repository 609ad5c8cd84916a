// Package sqlite persists active layout indices in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codeberg.org/miketth/kbgroupd/pkg/layoutstore/sqlite/migrations"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type LayoutStore struct {
	db *sql.DB
}

func NewLayoutStore(filename string, log *zap.SugaredLogger) (*LayoutStore, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrations.Migrate(db, log); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &LayoutStore{db: db}, nil
}

func (s *LayoutStore) Close() error {
	return s.db.Close()
}

func (s *LayoutStore) ActiveLayout(fingerprint string) (int, bool, error) {
	var idx int
	err := s.db.QueryRowContext(context.Background(),
		`SELECT idx FROM active_layout WHERE fingerprint = ?`, fingerprint).Scan(&idx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("sqlite select: %w", err)
	}

	return idx, true, nil
}

func (s *LayoutStore) SetActiveLayout(fingerprint string, idx int) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO active_layout (fingerprint, idx, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (fingerprint) DO UPDATE SET idx = excluded.idx, updated_at = CURRENT_TIMESTAMP`,
		fingerprint, idx)
	if err != nil {
		return fmt.Errorf("sqlite upsert: %w", err)
	}

	return nil
}
