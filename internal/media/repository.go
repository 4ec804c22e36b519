package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"docsync/internal/docsync"
)

const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultFetchCacheTTL = time.Hour

	// MaxImageSize bounds how much of a remote image is downloaded.
	MaxImageSize = 20 << 20
)

var (
	errFetchStatus   = errors.New("unexpected response status")
	errImageTooLarge = errors.New("image exceeds size limit")
)

// Options configures a Repository.
type Options struct {
	// PublicBaseURL prefixes blob keys in the returned media URLs.
	PublicBaseURL string
	FetchTimeout  time.Duration

	// FetchCacheTTL is how long fetched bytes, and fetch failures, are
	// remembered per source URI.
	FetchCacheTTL time.Duration

	HTTPClient *http.Client
}

type fetchResult struct {
	data        []byte
	contentType string
	err         error
}

// Repository mirrors images into a BlobStore and records them in a MediaIndex.
// An image already mirrored from the same URI, or with the same bytes, is
// reused instead of stored again.
type Repository struct {
	store   BlobStore
	index   docsync.MediaIndex
	client  *http.Client
	fetches *ttlcache.Cache[string, fetchResult]
	baseURL string
	logger  docsync.Logger
}

// NewRepository creates a Repository. Call Close to stop the fetch cache.
func NewRepository(store BlobStore, index docsync.MediaIndex, opts Options, logger docsync.Logger) *Repository {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.FetchCacheTTL <= 0 {
		opts.FetchCacheTTL = DefaultFetchCacheTTL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
	}

	fetches := ttlcache.New[string, fetchResult](
		ttlcache.WithTTL[string, fetchResult](opts.FetchCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, fetchResult](),
	)
	go fetches.Start()

	return &Repository{
		store:   store,
		index:   index,
		client:  client,
		fetches: fetches,
		baseURL: strings.TrimSuffix(opts.PublicBaseURL, "/"),
		logger:  logger,
	}
}

// SaveByURI implements docsync.MediaRepository. Images that cannot be fetched
// return nil, nil. Index and blob store failures are storage outages.
func (r *Repository) SaveByURI(ctx context.Context, uri, alt string) (*docsync.MediaRef, error) {
	rec, err := r.index.FindMediaBySourceURI(ctx, uri)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return r.ref(rec, alt), nil
	}

	res := r.fetch(ctx, uri)
	if res.err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("image fetch failed", "uri", uri, "error", res.err)
		return nil, nil
	}

	sum := sha256.Sum256(res.data)
	checksum := hex.EncodeToString(sum[:])

	existing, err := r.index.FindMediaByChecksum(ctx, checksum)
	if err != nil {
		return nil, err
	}

	var filename string
	if existing != nil {
		filename = existing.Filename
	} else {
		filename = checksum + imageExtension(uri, res.contentType)
		err := r.store.Put(ctx, filename, bytes.NewReader(res.data), int64(len(res.data)), res.contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: storing %s: %w", docsync.ErrStorageUnavailable, filename, err)
		}
	}

	rec = &docsync.MediaRecord{
		Checksum:  checksum,
		SourceURI: uri,
		Filename:  filename,
		Alt:       alt,
	}
	if err := r.index.CreateMedia(ctx, rec); err != nil {
		return nil, err
	}
	r.logger.Debug("image mirrored", "uri", uri, "file", filename, "reused", existing != nil)
	return r.ref(rec, alt), nil
}

// Close stops the fetch cache's expiry loop.
func (r *Repository) Close() {
	r.fetches.Stop()
}

func (r *Repository) ref(rec *docsync.MediaRecord, alt string) *docsync.MediaRef {
	if alt == "" {
		alt = rec.Alt
	}
	return &docsync.MediaRef{
		ID:       rec.ID,
		Checksum: rec.Checksum,
		URL:      r.baseURL + "/" + rec.Filename,
		Alt:      alt,
	}
}

func (r *Repository) fetch(ctx context.Context, uri string) fetchResult {
	if item := r.fetches.Get(uri); item != nil {
		return item.Value()
	}

	var res fetchResult
	if isRemote(uri) {
		res.data, res.contentType, res.err = r.fetchRemote(ctx, uri)
	} else {
		res.data, res.contentType, res.err = readLocal(uri)
	}

	// A cancelled fetch says nothing about the image.
	if ctx.Err() == nil {
		r.fetches.Set(uri, res, ttlcache.DefaultTTL)
	}
	return res
}

func (r *Repository) fetchRemote(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s", errFetchStatus, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxImageSize {
		return nil, "", errImageTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}

// readLocal reads a regular file. Symlinks are refused so that a link in the
// source tree cannot expose files outside it.
func readLocal(p string) ([]byte, string, error) {
	info, err := os.Lstat(p)
	if err != nil {
		return nil, "", err
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("%s is not a regular file", p)
	}
	if info.Size() > MaxImageSize {
		return nil, "", errImageTooLarge
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", err
	}

	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// imageExtension picks the blob key extension from the source path, falling
// back to the content type.
func imageExtension(uri, contentType string) string {
	p := uri
	if isRemote(uri) {
		if u, err := url.Parse(uri); err == nil {
			p = u.Path
		}
	}
	if ext := strings.ToLower(path.Ext(filepath.ToSlash(p))); ext != "" && len(ext) <= 6 {
		return ext
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

var _ docsync.MediaRepository = (*Repository)(nil)
