package docsync

import (
	"context"
	"time"
)

// ClaimedItem is a queue row held under a lease.
type ClaimedItem struct {
	ID             int64
	QueueName      string
	Data           []byte
	LeaseToken     string
	LeaseExpiresAt time.Time
	Attempts       int
	CreatedAt      time.Time
}

// Queue is a durable FIFO with lease-based claiming.
// A claimed item is invisible to other claimers until its lease expires,
// which gives at-least-once delivery when a worker dies mid-item.
type Queue interface {
	// CreateItem appends data to the named queue and returns the item id.
	CreateItem(ctx context.Context, queueName string, data []byte) (int64, error)

	// ClaimItem leases the oldest visible item for lease.
	// Returns nil, nil when no item is visible.
	ClaimItem(ctx context.Context, queueName string, lease time.Duration) (*ClaimedItem, error)

	// DeleteItem removes a claimed item. Returns ErrLeaseLost when the lease
	// is no longer held by this claim.
	DeleteItem(ctx context.Context, item *ClaimedItem) error

	// ReleaseItem gives a claimed item back to the queue. It becomes visible
	// again after delay.
	ReleaseItem(ctx context.Context, item *ClaimedItem, delay time.Duration) error

	// DeleteQueue removes every item of the named queue and returns how many
	// were removed.
	DeleteQueue(ctx context.Context, queueName string) (int64, error)

	// CountItems returns the number of items in the named queue, leased or not.
	CountItems(ctx context.Context, queueName string) (int64, error)
}
