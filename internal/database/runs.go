package database

import (
	"context"
	"database/sql"
	"fmt"

	"docsync/internal/docsync"
)

func (s *SQLiteDatabase) CreateSyncRun(ctx context.Context, operation, parameters string) (*docsync.SyncRun, error) {
	run := &docsync.SyncRun{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  s.clock.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)`,
		run.Operation, run.Parameters, run.Status, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", classify(err))
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading sync run id: %w", err)
	}
	return run, nil
}

func (s *SQLiteDatabase) FinishSyncRun(ctx context.Context, id int64, status string, processed int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, processed = ?, finished_at = ? WHERE id = ?`,
		status, processed, s.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing sync run %d: %w", id, classify(err))
	}
	return nil
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]*docsync.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, parameters, status, processed, started_at, finished_at
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", classify(err))
	}
	defer rows.Close()

	var out []*docsync.SyncRun
	for rows.Next() {
		var (
			run      docsync.SyncRun
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Operation, &run.Parameters, &run.Status, &run.Processed, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", classify(err))
	}
	return out, nil
}
