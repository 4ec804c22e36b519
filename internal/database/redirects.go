package database

import (
	"context"
	"fmt"

	"docsync/internal/docsync"
)

func (s *SQLiteDatabase) UpsertRedirect(ctx context.Context, rec *docsync.RedirectRecord) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO redirects (source_path, target_path, locale, sync_timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_path, locale) DO UPDATE SET
			target_path = excluded.target_path,
			sync_timestamp = excluded.sync_timestamp
		RETURNING id`,
		rec.SourcePath, rec.TargetPath, rec.Locale, rec.SyncTimestamp,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("upserting redirect %s: %w", rec.SourcePath, classify(err))
	}
	return nil
}

func (s *SQLiteDatabase) DeleteRedirectsSyncedBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM redirects WHERE sync_timestamp < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("deleting stale redirects: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) ListRedirects(ctx context.Context, locale string) ([]*docsync.RedirectRecord, error) {
	query := `SELECT id, source_path, target_path, locale, sync_timestamp FROM redirects`
	var args []any
	if locale != "" {
		query += ` WHERE locale = ?`
		args = append(args, locale)
	}
	query += ` ORDER BY locale, source_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing redirects: %w", classify(err))
	}
	defer rows.Close()

	var out []*docsync.RedirectRecord
	for rows.Next() {
		var rec docsync.RedirectRecord
		if err := rows.Scan(&rec.ID, &rec.SourcePath, &rec.TargetPath, &rec.Locale, &rec.SyncTimestamp); err != nil {
			return nil, fmt.Errorf("scanning redirect: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing redirects: %w", classify(err))
	}
	return out, nil
}
