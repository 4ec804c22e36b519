package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docsync/internal/docsync"
)

const contentColumns = `id, external_id, locale, title, relative_pathname, core_version,
	category_area, category_order, category_title, body, source_revision, source_hash,
	sync_timestamp, published, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*docsync.ContentRecord, error) {
	var (
		rec           docsync.ContentRecord
		area, ctitle  sql.NullString
		categoryOrder int
	)
	err := row.Scan(&rec.ID, &rec.ExternalID, &rec.Locale, &rec.Title, &rec.RelativePathname, &rec.CoreVersion,
		&area, &categoryOrder, &ctitle, &rec.Body, &rec.SourceRevision, &rec.SourceHash,
		&rec.SyncTimestamp, &rec.Published, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if area.Valid {
		rec.Category = &docsync.Category{Area: area.String, Order: categoryOrder, Title: ctitle.String}
	}
	return &rec, nil
}

func (s *SQLiteDatabase) FindContent(ctx context.Context, externalID, locale string) (*docsync.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM content WHERE external_id = ? AND locale = ?`, externalID, locale)
	rec, err := scanContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding content %s/%s: %w", locale, externalID, classify(err))
	}
	return rec, nil
}

func (s *SQLiteDatabase) UpsertContent(ctx context.Context, rec *docsync.ContentRecord) error {
	now := s.clock.Now().UTC()
	var area, ctitle sql.NullString
	var order int
	if rec.Category != nil {
		area = sql.NullString{String: rec.Category.Area, Valid: true}
		ctitle = sql.NullString{String: rec.Category.Title, Valid: true}
		order = rec.Category.Order
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO content (external_id, locale, title, relative_pathname, core_version,
			category_area, category_order, category_title, body, source_revision, source_hash,
			sync_timestamp, published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (external_id, locale) DO UPDATE SET
			title = excluded.title,
			relative_pathname = excluded.relative_pathname,
			core_version = excluded.core_version,
			category_area = excluded.category_area,
			category_order = excluded.category_order,
			category_title = excluded.category_title,
			body = excluded.body,
			source_revision = excluded.source_revision,
			source_hash = excluded.source_hash,
			sync_timestamp = excluded.sync_timestamp,
			published = 1,
			updated_at = excluded.updated_at
		RETURNING id`,
		rec.ExternalID, rec.Locale, rec.Title, rec.RelativePathname, rec.CoreVersion,
		area, order, ctitle, rec.Body, rec.SourceRevision, rec.SourceHash,
		rec.SyncTimestamp, now, now,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("upserting content %s/%s: %w", rec.Locale, rec.ExternalID, classify(err))
	}
	rec.Published = true
	rec.UpdatedAt = now
	return nil
}

func (s *SQLiteDatabase) TouchContent(ctx context.Context, id int64, syncTimestamp int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content SET sync_timestamp = ?, published = 1 WHERE id = ?`, syncTimestamp, id)
	if err != nil {
		return fmt.Errorf("touching content %d: %w", id, classify(err))
	}
	return nil
}

func (s *SQLiteDatabase) ListContentSyncedBefore(ctx context.Context, ts int64) ([]*docsync.ContentRecord, error) {
	return s.listContent(ctx, `SELECT `+contentColumns+` FROM content WHERE sync_timestamp < ? ORDER BY id`, ts)
}

func (s *SQLiteDatabase) ListContent(ctx context.Context, limit, offset int) ([]*docsync.ContentRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listContent(ctx,
		`SELECT `+contentColumns+` FROM content ORDER BY locale, external_id LIMIT ? OFFSET ?`, limit, offset)
}

func (s *SQLiteDatabase) listContent(ctx context.Context, query string, args ...any) ([]*docsync.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", classify(err))
	}
	defer rows.Close()

	var out []*docsync.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning content: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing content: %w", classify(err))
	}
	return out, nil
}

func (s *SQLiteDatabase) DeleteContent(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting content %d: %w", id, classify(err))
	}
	return nil
}

func (s *SQLiteDatabase) UnpublishContent(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE content SET published = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("unpublishing content %d: %w", id, classify(err))
	}
	return nil
}

func (s *SQLiteDatabase) CountContent(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting content: %w", classify(err))
	}
	return n, nil
}
