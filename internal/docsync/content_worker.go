package docsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ContentWorker creates, touches or updates content records for a batch of
// source files. Unchanged files only get their sync timestamp bumped.
type ContentWorker struct {
	finder Finder
	parser ContentParser
	store  ContentStore
	state  StateStore
	media  MediaRepository
	cache  CacheInvalidator
	logger Logger
	clock  Clock
}

// NewContentWorker creates a ContentWorker. media may be nil, in which case
// image references are rendered unchanged.
func NewContentWorker(finder Finder, parser ContentParser, store ContentStore, state StateStore, media MediaRepository, cache CacheInvalidator, logger Logger, clock Clock) *ContentWorker {
	return &ContentWorker{
		finder: finder,
		parser: parser,
		store:  store,
		state:  state,
		media:  media,
		cache:  cache,
		logger: logger,
		clock:  clock,
	}
}

type upsertAction int

const (
	actionCreated upsertAction = iota
	actionTouched
	actionUpdated
)

// Process handles one content batch.
func (w *ContentWorker) Process(ctx context.Context, files []SourceFile) Result {
	force, err := w.forceUpdate(ctx)
	if err != nil {
		return ResultFromError(fmt.Errorf("reading force update flag: %w", err))
	}

	now := w.clock.Now().Unix()
	var res Result
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Result{Outcome: OutcomeRequeue, Err: err, Processed: res.Processed, Skipped: res.Skipped}
		}

		action, err := w.processFile(ctx, f, now, force)
		if err != nil {
			if IsPartialFailure(err) {
				w.logger.Warn("skipping source file", "path", f.Path, "error", err)
				res.Skipped++
				continue
			}
			out := ResultFromError(fmt.Errorf("syncing %s: %w", f.Path, err))
			out.Processed, out.Skipped = res.Processed, res.Skipped
			return out
		}

		res.Processed++
		switch action {
		case actionCreated:
			w.logger.Info("content created", "locale", f.Locale, "path", f.RelativePath)
		case actionUpdated:
			w.logger.Info("content updated", "locale", f.Locale, "path", f.RelativePath)
		case actionTouched:
			w.logger.Debug("content unchanged", "locale", f.Locale, "path", f.RelativePath)
		}
	}
	return res
}

func (w *ContentWorker) forceUpdate(ctx context.Context) (bool, error) {
	v, ok, err := w.state.GetState(ctx, StateForceUpdate)
	if err != nil || !ok {
		return false, err
	}
	return v == "1" || v == "true", nil
}

func (w *ContentWorker) processFile(ctx context.Context, f SourceFile, now int64, force bool) (upsertAction, error) {
	data, err := w.finder.ReadFile(f.Path)
	if err != nil {
		return 0, &SourceReadError{Path: f.Path, Err: err}
	}
	hash := SourceHash(data)

	doc, err := w.parser.Parse(NormalizeSource(data))
	if err != nil {
		return 0, &ParseError{Path: f.Path, Err: err}
	}

	externalID := doc.Meta.ID
	if externalID == "" {
		externalID = ExternalIDFromPath(f.RelativePath)
	}

	existing, err := w.store.FindContent(ctx, externalID, f.Locale)
	if err != nil {
		return 0, fmt.Errorf("finding content: %w", err)
	}

	if existing != nil && existing.SourceHash == hash && !force {
		if err := w.store.TouchContent(ctx, existing.ID, now); err != nil {
			return 0, fmt.Errorf("touching content: %w", err)
		}
		return actionTouched, nil
	}

	images, err := w.mirrorImages(ctx, f, doc)
	if err != nil {
		return 0, err
	}
	body, err := w.parser.Render(doc, images)
	if err != nil {
		return 0, &ParseError{Path: f.Path, Err: err}
	}

	rec := &ContentRecord{
		ExternalID:       externalID,
		Locale:           f.Locale,
		Title:            documentTitle(doc, externalID),
		RelativePathname: f.RelativePath,
		CoreVersion:      doc.Meta.Core,
		Category:         doc.Meta.Category,
		Body:             body,
		SourceRevision:   f.LastRevisionID,
		SourceHash:       hash,
		SyncTimestamp:    now,
		Published:        true,
	}
	if err := w.store.UpsertContent(ctx, rec); err != nil {
		return 0, fmt.Errorf("saving content: %w", err)
	}

	tags := rec.CacheTags()
	action := actionCreated
	if existing != nil {
		action = actionUpdated
		tags = appendMissing(tags, existing.CacheTags())
	}
	if err := w.cache.InvalidateTags(ctx, tags); err != nil {
		w.logger.Warn("cache invalidation failed", "external_id", externalID, "error", err)
	}
	return action, nil
}

// mirrorImages saves every image of doc into the media repository and returns
// the replacement URLs keyed by original source. Only storage outages abort.
func (w *ContentWorker) mirrorImages(ctx context.Context, f SourceFile, doc *ContentDocument) (map[string]string, error) {
	if w.media == nil || len(doc.Images) == 0 {
		return nil, nil
	}
	images := make(map[string]string, len(doc.Images))
	for _, img := range doc.Images {
		if _, done := images[img.Src]; done {
			continue
		}
		uri := resolveImageURI(sourceRoot(f), f.Path, img.Src)
		if uri == "" {
			continue
		}
		ref, err := w.media.SaveByURI(ctx, uri, img.Alt)
		if err != nil {
			if errors.Is(err, ErrStorageUnavailable) {
				return nil, err
			}
			w.logger.Warn("image not mirrored", "path", f.Path, "src", img.Src, "error", err)
			continue
		}
		if ref == nil {
			w.logger.Debug("image not found", "path", f.Path, "src", img.Src)
			continue
		}
		images[img.Src] = ref.URL
	}
	return images, nil
}

// resolveImageURI turns an image source into something the media repository
// can load: remote URLs are kept, relative paths are resolved against the
// document's directory. Site-absolute paths, other schemes and relative paths
// that leave root return "".
func resolveImageURI(root, docPath, src string) string {
	if src == "" || strings.HasPrefix(src, "#") {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
		return src
	case "":
	default:
		return ""
	}
	p := u.Path
	if p == "" || path.IsAbs(p) {
		return ""
	}
	resolved := filepath.Join(filepath.Dir(docPath), filepath.FromSlash(p))
	rel, err := filepath.Rel(filepath.Clean(root), resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return ""
	}
	return resolved
}

// sourceRoot returns the directory holding the locale directory of f. When
// f.Path does not end in its relative path, the document's own directory is
// used.
func sourceRoot(f SourceFile) string {
	rel := filepath.FromSlash(f.RelativePath)
	if rel == "" || !strings.HasSuffix(f.Path, string(filepath.Separator)+rel) {
		return filepath.Dir(f.Path)
	}
	localeDir := strings.TrimSuffix(f.Path, string(filepath.Separator)+rel)
	return filepath.Dir(localeDir)
}

func documentTitle(doc *ContentDocument, externalID string) string {
	switch {
	case doc.Meta.Title != "":
		return doc.Meta.Title
	case doc.Heading != "":
		return doc.Heading
	default:
		return externalID
	}
}

func appendMissing(tags, extra []string) []string {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			tags = append(tags, t)
			seen[t] = true
		}
	}
	return tags
}
