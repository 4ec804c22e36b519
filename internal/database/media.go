package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docsync/internal/docsync"
)

const mediaColumns = `id, checksum, source_uri, filename, alt, created_at`

func scanMedia(row rowScanner) (*docsync.MediaRecord, error) {
	var rec docsync.MediaRecord
	if err := row.Scan(&rec.ID, &rec.Checksum, &rec.SourceURI, &rec.Filename, &rec.Alt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteDatabase) FindMediaBySourceURI(ctx context.Context, uri string) (*docsync.MediaRecord, error) {
	rec, err := scanMedia(s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE source_uri = ?`, uri))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding media by uri: %w", classify(err))
	}
	return rec, nil
}

func (s *SQLiteDatabase) FindMediaByChecksum(ctx context.Context, checksum string) (*docsync.MediaRecord, error) {
	rec, err := scanMedia(s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE checksum = ? ORDER BY created_at LIMIT 1`, checksum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding media by checksum: %w", classify(err))
	}
	return rec, nil
}

// CreateMedia inserts rec, assigning an id and creation time when unset.
func (s *SQLiteDatabase) CreateMedia(ctx context.Context, rec *docsync.MediaRecord) error {
	if rec.ID == "" {
		rec.ID = s.idgen.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media (`+mediaColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Checksum, rec.SourceURI, rec.Filename, rec.Alt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating media: %w", classify(err))
	}
	return nil
}
