package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteDatabase) GetState(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading state %s: %w", key, classify(err))
	}
	return v, true, nil
}

func (s *SQLiteDatabase) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing state %s: %w", key, classify(err))
	}
	return nil
}

// DeleteState removes a key. Deleting a missing key is not an error.
func (s *SQLiteDatabase) DeleteState(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting state %s: %w", key, classify(err))
	}
	return nil
}
