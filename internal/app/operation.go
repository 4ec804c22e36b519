package app

import (
	"context"

	"docsync/internal/docsync"
)

// Sync run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SyncOperation tracks a CLI or admin operation that mutates the queue or
// the synced content. Operations are created in memory with ID=0 and get an
// auto-increment ID when persisted as a sync run.
type SyncOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	Processed  int64
}

// NewSyncOperation creates a new in-memory sync operation.
func NewSyncOperation(operation, parameters string) *SyncOperation {
	return &SyncOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *SyncOperation) Persisted() bool {
	return op.ID != 0
}

// Finish records the outcome of the operation.
func (op *SyncOperation) Finish(processed int64, err error) {
	op.Processed = processed
	if err != nil {
		op.Status = StatusError
	}
}

// track persists op as a sync run, runs fn and stores its outcome. A failure
// to finish the run record is logged; fn's error is returned unchanged.
func track(ctx context.Context, runs docsync.RunStore, logger docsync.Logger, op *SyncOperation, fn func() (int64, error)) error {
	run, err := runs.CreateSyncRun(ctx, op.Operation, op.Parameters)
	if err != nil {
		return err
	}
	op.ID = run.ID

	processed, fnErr := fn()
	op.Finish(processed, fnErr)

	// The caller's context may already be done; the record should still be closed.
	if err := runs.FinishSyncRun(context.WithoutCancel(ctx), op.ID, op.Status, op.Processed); err != nil {
		logger.Warn("finishing sync run failed", "id", op.ID, "operation", op.Operation, "error", err)
	}
	return fnErr
}
