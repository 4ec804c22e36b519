package docsync

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultQueueName = "content_sync"
	DefaultBatchSize = 50
)

// BatchProcessor handles the files of a content or redirect batch.
type BatchProcessor interface {
	Process(ctx context.Context, files []SourceFile) Result
}

// CleanupProcessor reconciles the store against a pass start timestamp.
type CleanupProcessor interface {
	Process(ctx context.Context, passStart int64) Result
}

// ManagerConfig holds the tunables of a QueueManager.
type ManagerConfig struct {
	QueueName string
	BatchSize int
}

// BuildSummary describes the items enqueued by BuildFromPath.
type BuildSummary struct {
	ContentFiles    int   `json:"content_files"`
	RedirectFiles   int   `json:"redirect_files"`
	ContentBatches  int   `json:"content_batches"`
	RedirectBatches int   `json:"redirect_batches"`
	PassStart       int64 `json:"pass_start"`
}

// Items returns the total number of enqueued items, cleanup marker included.
func (s *BuildSummary) Items() int {
	return s.ContentBatches + s.RedirectBatches + 1
}

// QueueManager builds the sync queue from a source directory and drains it
// within a time limit.
type QueueManager struct {
	cfg       ManagerConfig
	queue     Queue
	state     StateStore
	finder    Finder
	content   BatchProcessor
	redirects BatchProcessor
	cleanup   CleanupProcessor
	logger    Logger
	clock     Clock
}

// NewQueueManager creates a QueueManager. Zero config values fall back to defaults.
func NewQueueManager(cfg ManagerConfig, queue Queue, state StateStore, finder Finder, content, redirects BatchProcessor, cleanup CleanupProcessor, logger Logger, clock Clock) *QueueManager {
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &QueueManager{
		cfg:       cfg,
		queue:     queue,
		state:     state,
		finder:    finder,
		content:   content,
		redirects: redirects,
		cleanup:   cleanup,
		logger:    logger,
		clock:     clock,
	}
}

// QueueName returns the queue channel this manager works on.
func (m *QueueManager) QueueName() string { return m.cfg.QueueName }

// BuildFromPath replaces the queue with batches for every source file under
// dir, followed by exactly one cleanup marker. An invalid dir leaves the queue
// untouched.
func (m *QueueManager) BuildFromPath(ctx context.Context, dir string) (*BuildSummary, error) {
	contentFiles, err := m.finder.FindContent(dir)
	if err != nil {
		return nil, fmt.Errorf("finding content files: %w", err)
	}
	redirectFiles, err := m.finder.FindRedirects(dir)
	if err != nil {
		return nil, fmt.Errorf("finding redirect files: %w", err)
	}

	if err := m.Clear(ctx); err != nil {
		return nil, err
	}

	summary := &BuildSummary{
		ContentFiles:  len(contentFiles),
		RedirectFiles: len(redirectFiles),
	}
	for _, chunk := range ChunkFiles(contentFiles, m.cfg.BatchSize) {
		if err := m.enqueue(ctx, NewContentBatch(chunk)); err != nil {
			return nil, err
		}
		summary.ContentBatches++
	}
	for _, chunk := range ChunkFiles(redirectFiles, m.cfg.BatchSize) {
		if err := m.enqueue(ctx, NewRedirectBatch(chunk)); err != nil {
			return nil, err
		}
		summary.RedirectBatches++
	}

	summary.PassStart = m.clock.Now().Unix()
	if err := m.enqueue(ctx, NewCleanupMarker(summary.PassStart)); err != nil {
		return nil, err
	}
	if err := m.state.SetState(ctx, StateLastSyncTimestamp, strconv.FormatInt(summary.PassStart, 10)); err != nil {
		return nil, fmt.Errorf("recording sync timestamp: %w", err)
	}

	m.logger.Info("sync queue built", "dir", dir,
		"content_files", summary.ContentFiles, "redirect_files", summary.RedirectFiles,
		"items", summary.Items(), "pass_start", summary.PassStart)
	return summary, nil
}

func (m *QueueManager) enqueue(ctx context.Context, item QueueItem) error {
	data, err := EncodeItem(item)
	if err != nil {
		return err
	}
	if _, err := m.queue.CreateItem(ctx, m.cfg.QueueName, data); err != nil {
		return fmt.Errorf("enqueueing %s item: %w", item.Kind, err)
	}
	return nil
}

// Clear removes every item from the queue. Clearing an empty queue is a no-op.
func (m *QueueManager) Clear(ctx context.Context) error {
	n, err := m.queue.DeleteQueue(ctx, m.cfg.QueueName)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	if n > 0 {
		m.logger.Info("sync queue cleared", "items", n)
	}
	return nil
}

// Count returns the number of items waiting in the queue.
func (m *QueueManager) Count(ctx context.Context) (int64, error) {
	n, err := m.queue.CountItems(ctx, m.cfg.QueueName)
	if err != nil {
		return 0, fmt.Errorf("counting queue items: %w", err)
	}
	return n, nil
}

// LastSyncTimestamp returns the pass start of the most recent build, or 0.
func (m *QueueManager) LastSyncTimestamp(ctx context.Context) (int64, error) {
	v, ok, err := m.state.GetState(ctx, StateLastSyncTimestamp)
	if err != nil || !ok {
		return 0, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", StateLastSyncTimestamp, err)
	}
	return ts, nil
}

// Run claims and processes items until the queue is empty, timeLimit has
// elapsed, ctx is done or a worker asks to suspend. Each item is leased for
// timeLimit. It returns the number of items that left the queue, successful or
// dropped. Worker failures never surface as errors; only queue failures do.
func (m *QueueManager) Run(ctx context.Context, timeLimit time.Duration) (int, error) {
	if timeLimit <= 0 {
		return 0, nil
	}
	lease := max(timeLimit, time.Second)

	start := m.clock.Now()
	processed := 0
	for m.clock.Now().Sub(start) < timeLimit {
		if ctx.Err() != nil {
			break
		}

		claimed, err := m.queue.ClaimItem(ctx, m.cfg.QueueName, lease)
		if err != nil {
			return processed, fmt.Errorf("claiming queue item: %w", err)
		}
		if claimed == nil {
			break
		}

		res := m.process(ctx, claimed)
		switch res.Outcome {
		case OutcomeSuccess:
			if err := m.queue.DeleteItem(ctx, claimed); err != nil {
				return processed, fmt.Errorf("deleting queue item %d: %w", claimed.ID, err)
			}
			processed++

		case OutcomeRequeue:
			m.logger.Warn("queue item requeued", "item", claimed.ID, "attempts", claimed.Attempts, "error", res.Err)
			// Released items are visible at once, and the lowest id is claimed
			// next, so nothing queued behind a requeued batch runs before it.
			if err := m.queue.ReleaseItem(ctx, claimed, 0); err != nil {
				return processed, fmt.Errorf("releasing queue item %d: %w", claimed.ID, err)
			}

		case OutcomeSuspend:
			m.logger.Warn("queue processing suspended", "item", claimed.ID, "error", res.Err)
			if err := m.queue.ReleaseItem(ctx, claimed, 0); err != nil {
				return processed, fmt.Errorf("releasing queue item %d: %w", claimed.ID, err)
			}
			return processed, nil

		case OutcomeFailed:
			m.logger.Error("queue item failed, dropping", "item", claimed.ID, "error", res.Err)
			if err := m.queue.DeleteItem(ctx, claimed); err != nil {
				return processed, fmt.Errorf("deleting queue item %d: %w", claimed.ID, err)
			}
			processed++

		default:
			return processed, fmt.Errorf("unknown outcome %v for queue item %d", res.Outcome, claimed.ID)
		}
	}

	m.logger.Info("sync queue run finished", "processed", processed, "elapsed", m.clock.Now().Sub(start).String())
	return processed, nil
}

// process decodes and dispatches one claimed item.
func (m *QueueManager) process(ctx context.Context, claimed *ClaimedItem) Result {
	item, err := DecodeItem(claimed.Data)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	var res Result
	switch item.Kind {
	case KindContentBatch:
		res = m.content.Process(ctx, item.Files)
	case KindRedirectBatch:
		res = m.redirects.Process(ctx, item.Files)
	case KindCleanup:
		res = m.cleanup.Process(ctx, item.PassStartTimestamp)
	default:
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("unknown queue item kind %q", item.Kind)}
	}

	m.logger.Debug("queue item processed", "item", claimed.ID, "kind", string(item.Kind),
		"outcome", res.Outcome.String(), "files", res.Processed, "skipped", res.Skipped)
	return res
}
