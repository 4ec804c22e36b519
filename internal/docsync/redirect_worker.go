package docsync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// RedirectWorker upserts the rules of a batch of redirect declaration files.
type RedirectWorker struct {
	finder Finder
	parser RedirectParser
	store  RedirectStore
	logger Logger
	clock  Clock
}

func NewRedirectWorker(finder Finder, parser RedirectParser, store RedirectStore, logger Logger, clock Clock) *RedirectWorker {
	return &RedirectWorker{
		finder: finder,
		parser: parser,
		store:  store,
		logger: logger,
		clock:  clock,
	}
}

// Process handles one redirect batch.
func (w *RedirectWorker) Process(ctx context.Context, files []SourceFile) Result {
	now := w.clock.Now().Unix()
	var res Result
	for _, f := range files {
		n, err := w.processFile(ctx, f, now)
		if err != nil {
			if IsPartialFailure(err) {
				w.logger.Warn("skipping redirect file", "path", f.Path, "error", err)
				res.Skipped++
				continue
			}
			out := ResultFromError(fmt.Errorf("syncing redirects from %s: %w", f.Path, err))
			out.Processed, out.Skipped = res.Processed, res.Skipped
			return out
		}
		w.logger.Info("redirects synced", "locale", f.Locale, "path", f.RelativePath, "count", n)
		res.Processed++
	}
	return res
}

func (w *RedirectWorker) processFile(ctx context.Context, f SourceFile, now int64) (int, error) {
	data, err := w.finder.ReadFile(f.Path)
	if err != nil {
		return 0, &SourceReadError{Path: f.Path, Err: err}
	}

	rules, skipped, err := w.parser.ParseRedirects(bytes.NewReader(NormalizeSource(data)))
	if err != nil {
		return 0, &ParseError{Path: f.Path, Err: err}
	}
	for _, rowErr := range skipped {
		w.logger.Warn("invalid redirect row", "path", f.Path, "error", rowErr)
	}

	for _, rule := range rules {
		rec := &RedirectRecord{
			SourcePath:    NormalizeRedirectPath(rule.Source),
			TargetPath:    NormalizeRedirectPath(rule.Target),
			Locale:        f.Locale,
			SyncTimestamp: now,
		}
		if err := w.store.UpsertRedirect(ctx, rec); err != nil {
			return 0, fmt.Errorf("saving redirect %s: %w", rec.SourcePath, err)
		}
	}
	return len(rules), nil
}

// NormalizeRedirectPath gives site paths a leading slash. Absolute URLs are
// returned unchanged.
func NormalizeRedirectPath(p string) string {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "://") || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
