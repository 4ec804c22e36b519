package docsync

import (
	"context"
	"fmt"
	"strconv"
)

// CleanupPolicy decides what happens to content that vanished from the source.
type CleanupPolicy string

const (
	CleanupDelete    CleanupPolicy = "delete"
	CleanupUnpublish CleanupPolicy = "unpublish"
)

// CleanupWorker removes records that were not seen by the pass that started
// at the cleanup item's timestamp.
type CleanupWorker struct {
	content   ContentStore
	redirects RedirectStore
	state     StateStore
	cache     CacheInvalidator
	policy    CleanupPolicy
	logger    Logger
}

func NewCleanupWorker(content ContentStore, redirects RedirectStore, state StateStore, cache CacheInvalidator, policy CleanupPolicy, logger Logger) *CleanupWorker {
	if policy == "" {
		policy = CleanupDelete
	}
	return &CleanupWorker{
		content:   content,
		redirects: redirects,
		state:     state,
		cache:     cache,
		policy:    policy,
		logger:    logger,
	}
}

// Process removes or unpublishes every content record with a sync timestamp
// older than passStart and deletes stale redirects.
func (w *CleanupWorker) Process(ctx context.Context, passStart int64) Result {
	stale, err := w.content.ListContentSyncedBefore(ctx, passStart)
	if err != nil {
		return ResultFromError(fmt.Errorf("listing stale content: %w", err))
	}

	var res Result
	var tags []string
	for _, rec := range stale {
		switch w.policy {
		case CleanupUnpublish:
			if !rec.Published {
				continue
			}
			err = w.content.UnpublishContent(ctx, rec.ID)
		default:
			err = w.content.DeleteContent(ctx, rec.ID)
		}
		if err != nil {
			out := ResultFromError(fmt.Errorf("cleaning up content %d: %w", rec.ID, err))
			out.Processed = res.Processed
			return out
		}
		w.logger.Info("stale content removed", "policy", string(w.policy), "locale", rec.Locale, "external_id", rec.ExternalID)
		tags = appendMissing(tags, rec.CacheTags())
		res.Processed++
	}

	if len(tags) > 0 {
		if err := w.cache.InvalidateTags(ctx, tags); err != nil {
			w.logger.Warn("cache invalidation failed", "error", err)
		}
	}

	removed, err := w.redirects.DeleteRedirectsSyncedBefore(ctx, passStart)
	if err != nil {
		out := ResultFromError(fmt.Errorf("cleaning up redirects: %w", err))
		out.Processed = res.Processed
		return out
	}

	if err := w.state.SetState(ctx, StateLastCleanupTimestamp, strconv.FormatInt(passStart, 10)); err != nil {
		w.logger.Warn("recording cleanup timestamp failed", "error", err)
	}

	w.logger.Info("cleanup finished", "pass_start", passStart, "content", res.Processed, "redirects", removed)
	return res
}
