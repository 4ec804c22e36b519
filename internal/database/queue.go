package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docsync/internal/docsync"
)

// Queue items store times as unix milliseconds so that lease comparisons are
// plain integer comparisons inside a single statement.

func (s *SQLiteDatabase) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *SQLiteDatabase) CreateItem(ctx context.Context, queueName string, data []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (queue_name, data, created_at) VALUES (?, ?, ?)`,
		queueName, data, s.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("creating queue item: %w", classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading queue item id: %w", err)
	}
	return id, nil
}

// ClaimItem leases the oldest item whose lease is unset or expired. The
// select and the lease update run as one statement, so two claimers can never
// hold the same item.
func (s *SQLiteDatabase) ClaimItem(ctx context.Context, queueName string, lease time.Duration) (*docsync.ClaimedItem, error) {
	now := s.nowMillis()
	token := s.idgen.New()
	expires := now + lease.Milliseconds()

	var (
		item      docsync.ClaimedItem
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET lease_token = ?, lease_expires_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM queue_items
			WHERE queue_name = ? AND lease_expires_at <= ?
			ORDER BY id
			LIMIT 1
		)
		RETURNING id, queue_name, data, attempts, created_at`,
		token, expires, queueName, now,
	).Scan(&item.ID, &item.QueueName, &item.Data, &item.Attempts, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Nothing visible
		}
		return nil, fmt.Errorf("claiming queue item: %w", classify(err))
	}

	item.LeaseToken = token
	item.LeaseExpiresAt = time.UnixMilli(expires)
	item.CreatedAt = time.UnixMilli(createdAt)
	return &item, nil
}

func (s *SQLiteDatabase) DeleteItem(ctx context.Context, item *docsync.ClaimedItem) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE id = ? AND lease_token = ?`, item.ID, item.LeaseToken)
	if err != nil {
		return fmt.Errorf("deleting queue item %d: %w", item.ID, classify(err))
	}
	return expectOneRow(res, item.ID)
}

func (s *SQLiteDatabase) ReleaseItem(ctx context.Context, item *docsync.ClaimedItem, delay time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET lease_token = NULL, lease_expires_at = ? WHERE id = ? AND lease_token = ?`,
		s.nowMillis()+delay.Milliseconds(), item.ID, item.LeaseToken)
	if err != nil {
		return fmt.Errorf("releasing queue item %d: %w", item.ID, classify(err))
	}
	return expectOneRow(res, item.ID)
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %d: %w", id, docsync.ErrLeaseLost)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteQueue(ctx context.Context, queueName string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE queue_name = ?`, queueName)
	if err != nil {
		return 0, fmt.Errorf("deleting queue %s: %w", queueName, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) CountItems(ctx context.Context, queueName string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items WHERE queue_name = ?`, queueName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting queue %s: %w", queueName, classify(err))
	}
	return n, nil
}

// ListItems returns the items of a queue in claim order without leasing them.
func (s *SQLiteDatabase) ListItems(ctx context.Context, queueName string) ([]*docsync.ClaimedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_name, data, attempts, created_at, COALESCE(lease_token, ''), lease_expires_at
		FROM queue_items WHERE queue_name = ? ORDER BY id`, queueName)
	if err != nil {
		return nil, fmt.Errorf("listing queue %s: %w", queueName, classify(err))
	}
	defer rows.Close()

	var out []*docsync.ClaimedItem
	for rows.Next() {
		var (
			item               docsync.ClaimedItem
			createdAt, expires int64
		)
		if err := rows.Scan(&item.ID, &item.QueueName, &item.Data, &item.Attempts, &createdAt, &item.LeaseToken, &expires); err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		item.CreatedAt = time.UnixMilli(createdAt)
		if expires > 0 {
			item.LeaseExpiresAt = time.UnixMilli(expires)
		}
		out = append(out, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing queue %s: %w", queueName, classify(err))
	}
	return out, nil
}
