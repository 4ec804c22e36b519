package docsync

import "context"

// State keys shared between the queue manager, the workers and the admin surface.
const (
	StateLastSyncTimestamp    = "last_sync_timestamp"
	StateLastCleanupTimestamp = "last_cleanup_timestamp"
	StateForceUpdate          = "force_update"
	StateMaintenanceMode      = "maintenance_mode"
)

// ContentStore persists content records.
// Lookups return nil, nil when nothing matches.
type ContentStore interface {
	// FindContent returns the record for an external id in a locale.
	FindContent(ctx context.Context, externalID, locale string) (*ContentRecord, error)

	// UpsertContent inserts or fully updates the record keyed by
	// (ExternalID, Locale), publishes it and sets rec.ID.
	UpsertContent(ctx context.Context, rec *ContentRecord) error

	// TouchContent sets only the sync timestamp and re-publishes the record.
	TouchContent(ctx context.Context, id int64, syncTimestamp int64) error

	// ListContentSyncedBefore returns records whose sync timestamp is older than ts.
	ListContentSyncedBefore(ctx context.Context, ts int64) ([]*ContentRecord, error)

	DeleteContent(ctx context.Context, id int64) error
	UnpublishContent(ctx context.Context, id int64) error

	CountContent(ctx context.Context) (int64, error)
	ListContent(ctx context.Context, limit, offset int) ([]*ContentRecord, error)
}

// RedirectStore persists redirect records.
type RedirectStore interface {
	// UpsertRedirect inserts or updates the record keyed by (SourcePath, Locale).
	UpsertRedirect(ctx context.Context, rec *RedirectRecord) error

	// DeleteRedirectsSyncedBefore removes records whose sync timestamp is older
	// than ts and returns how many were removed.
	DeleteRedirectsSyncedBefore(ctx context.Context, ts int64) (int64, error)

	// ListRedirects returns all redirects, or those of one locale when locale is set.
	ListRedirects(ctx context.Context, locale string) ([]*RedirectRecord, error)
}

// StateStore is a small key/value store for sync bookkeeping.
type StateStore interface {
	// GetState returns the value and whether the key exists.
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
}

// RunStore records the history of sync operations.
type RunStore interface {
	CreateSyncRun(ctx context.Context, operation, parameters string) (*SyncRun, error)
	FinishSyncRun(ctx context.Context, id int64, status string, processed int64) error
	ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)
}

// MediaIndex persists the mirrored image index.
type MediaIndex interface {
	FindMediaBySourceURI(ctx context.Context, uri string) (*MediaRecord, error)
	FindMediaByChecksum(ctx context.Context, checksum string) (*MediaRecord, error)
	CreateMedia(ctx context.Context, rec *MediaRecord) error
}
