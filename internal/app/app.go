package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/database"
	"docsync/internal/database/migrations"
	"docsync/internal/docsync"
	"docsync/internal/events"
	"docsync/internal/finder"
	"docsync/internal/gitsource"
	"docsync/internal/media"
	"docsync/internal/parser"
	"docsync/internal/watch"
)

// DefaultHistoryLimit is how many sync runs QueueStatus reports.
const DefaultHistoryLimit = 5

// DocSyncApp is the application layer between the CLI or HTTP surface and
// the sync queue. It constructs all dependencies from config, exposes
// high-level operations that accept raw values, and releases resources on Close.
type DocSyncApp struct {
	cfg        *config.Config
	db         *database.SQLiteDatabase
	finder     *finder.SourceFinder
	git        *gitsource.Repo
	media      *media.Repository
	blobs      media.BlobStore
	cache      docsync.CacheInvalidator
	closeCache func() error
	manager    *docsync.QueueManager
	bus        *events.Bus
	logger     docsync.Logger
	logFile    io.Closer
	clock      docsync.Clock
}

// NewDocSyncApp creates a fully wired DocSyncApp from the given config.
// operation identifies the command being run (e.g. "QueueBuild", "Serve") and
// tags every log line. The caller must call Close when done.
func NewDocSyncApp(ctx context.Context, cfg *config.Config, operation string) (*DocSyncApp, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	stderrLevel := slog.LevelInfo
	if os.Getenv("DOCSYNC_DEBUG") != "" {
		stderrLevel = slog.LevelDebug
	}
	opID := operation + "-" + time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, stderrLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := docsync.RealClock{}
	db, err := database.NewDatabaseFromConfig(cfg.Database, clock, docsync.UUIDGenerator{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	a, err := newDocSyncApp(ctx, cfg, db, logger, clock)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

// newDocSyncApp wires everything that sits on top of an open, migrated database.
func newDocSyncApp(ctx context.Context, cfg *config.Config, db *database.SQLiteDatabase, logger docsync.Logger, clock docsync.Clock) (*DocSyncApp, error) {
	git := gitsource.New(cfg.Source.RepositoryDir, cfg.Source.GitRemote, cfg.Source.GitBranch, logger)
	srcFinder := finder.New(finder.Options{
		Locales:           cfg.Source.Locales,
		ContentExtensions: cfg.Source.ContentExtensions,
		RedirectFile:      cfg.Source.RedirectFile,
		Ignore:            cfg.Source.Ignore,
	}, revisionResolver{git: git}, logger)

	repo, blobs, err := media.NewRepositoryFromConfig(ctx, cfg.Media, db, logger)
	if err != nil {
		return nil, fmt.Errorf("creating media repository: %w", err)
	}

	inv, closeCache, err := cache.NewFromConfig(ctx, cfg.Cache)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("creating cache invalidator: %w", err)
	}

	contentWorker := docsync.NewContentWorker(srcFinder, parser.NewMarkdownParser(), db, db, repo, inv, logger, clock)
	redirectWorker := docsync.NewRedirectWorker(srcFinder, parser.NewCSVRedirectParser(), db, logger, clock)
	cleanupWorker := docsync.NewCleanupWorker(db, db, db, inv, docsync.CleanupPolicy(cfg.Sync.CleanupPolicy), logger)

	manager := docsync.NewQueueManager(docsync.ManagerConfig{
		QueueName: cfg.Queue.Name,
		BatchSize: cfg.Queue.BatchSize,
	}, db, db, srcFinder, contentWorker, redirectWorker, cleanupWorker, logger, clock)

	a := &DocSyncApp{
		cfg:        cfg,
		db:         db,
		finder:     srcFinder,
		git:        git,
		media:      repo,
		blobs:      blobs,
		cache:      inv,
		closeCache: closeCache,
		manager:    manager,
		bus:        events.NewBus(logger),
		logger:     logger,
		clock:      clock,
	}
	a.bus.Subscribe(events.TopicUpdateRequested, a.onUpdateRequested)
	a.bus.Subscribe(events.TopicPullFinished, a.onPullFinished)
	return a, nil
}

// revisionResolver skips the git lookup for trees that are not git checkouts.
type revisionResolver struct {
	git *gitsource.Repo
}

func (r revisionResolver) LastRevisions(root string) (map[string]string, error) {
	if _, err := os.Stat(filepath.Join(r.git.Dir(), ".git")); err != nil {
		return nil, nil
	}
	return r.git.LastRevisions(root)
}

// Config returns the configuration the app was built with.
func (a *DocSyncApp) Config() *config.Config {
	return a.cfg
}

// resolveDir returns the absolute source dir, or the configured docs dir when
// rawDir is empty.
func (a *DocSyncApp) resolveDir(rawDir string) (string, error) {
	if rawDir == "" {
		rawDir = a.cfg.Source.DocsDir()
	}
	if rawDir == "" {
		return "", fmt.Errorf("no source directory given and source.repository_dir is not set")
	}
	return filepath.Abs(rawDir)
}

// BuildFromPath rebuilds the sync queue from the source files under rawDir.
func (a *DocSyncApp) BuildFromPath(ctx context.Context, rawDir string) (*docsync.BuildSummary, error) {
	dir, err := a.resolveDir(rawDir)
	if err != nil {
		return nil, err
	}

	var summary *docsync.BuildSummary
	op := NewSyncOperation("QueueBuild", dir)
	err = track(ctx, a.db, a.logger, op, func() (int64, error) {
		s, err := a.manager.BuildFromPath(ctx, dir)
		if err != nil {
			return 0, err
		}
		summary = s
		return int64(s.Items()), nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("queue built", "dir", dir, "content_files", summary.ContentFiles,
		"redirect_files", summary.RedirectFiles, "items", summary.Items())
	return summary, nil
}

// RunQueue processes queue items until the queue is empty or timeLimit has
// elapsed. A non-positive timeLimit uses the configured default.
func (a *DocSyncApp) RunQueue(ctx context.Context, timeLimit time.Duration) (int, error) {
	if timeLimit <= 0 {
		timeLimit = time.Duration(a.cfg.Queue.TimeLimitSeconds) * time.Second
	}

	var processed int
	op := NewSyncOperation("QueueRun", timeLimit.String())
	err := track(ctx, a.db, a.logger, op, func() (int64, error) {
		n, err := a.manager.Run(ctx, timeLimit)
		processed = n
		return int64(n), err
	})
	return processed, err
}

// ClearQueue drops every pending item.
func (a *DocSyncApp) ClearQueue(ctx context.Context) error {
	op := NewSyncOperation("QueueClear", a.manager.QueueName())
	return track(ctx, a.db, a.logger, op, func() (int64, error) {
		n, err := a.manager.Count(ctx)
		if err != nil {
			return 0, err
		}
		return n, a.manager.Clear(ctx)
	})
}

// SyncOnce rebuilds the queue from the configured docs dir and drains it.
func (a *DocSyncApp) SyncOnce(ctx context.Context, timeLimit time.Duration) (int, error) {
	if _, err := a.BuildFromPath(ctx, ""); err != nil {
		return 0, err
	}
	return a.RunQueue(ctx, timeLimit)
}

// QueueStatus summarizes the queue and recent sync runs.
type QueueStatus struct {
	Name                 string             `json:"name"`
	Items                int64              `json:"items"`
	LastSyncTimestamp    int64              `json:"last_sync_timestamp"`
	LastCleanupTimestamp int64              `json:"last_cleanup_timestamp"`
	ForceUpdate          bool               `json:"force_update"`
	MaintenanceMode      bool               `json:"maintenance_mode"`
	Runs                 []*docsync.SyncRun `json:"runs"`
}

func (a *DocSyncApp) QueueStatus(ctx context.Context) (*QueueStatus, error) {
	items, err := a.manager.Count(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := a.manager.LastSyncTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	lastCleanup, err := a.intState(ctx, docsync.StateLastCleanupTimestamp)
	if err != nil {
		return nil, err
	}
	force, err := a.boolState(ctx, docsync.StateForceUpdate)
	if err != nil {
		return nil, err
	}
	maintenance, err := a.MaintenanceMode(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := a.db.ListSyncRuns(ctx, DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Name:                 a.manager.QueueName(),
		Items:                items,
		LastSyncTimestamp:    lastSync,
		LastCleanupTimestamp: lastCleanup,
		ForceUpdate:          force,
		MaintenanceMode:      maintenance,
		Runs:                 runs,
	}, nil
}

// ListContent returns the total number of content records and one page of them.
func (a *DocSyncApp) ListContent(ctx context.Context, limit, offset int) (int64, []*docsync.ContentRecord, error) {
	total, err := a.db.CountContent(ctx)
	if err != nil {
		return 0, nil, err
	}
	rows, err := a.db.ListContent(ctx, limit, offset)
	if err != nil {
		return 0, nil, err
	}
	return total, rows, nil
}

func (a *DocSyncApp) ListRedirects(ctx context.Context, locale string) ([]*docsync.RedirectRecord, error) {
	return a.db.ListRedirects(ctx, locale)
}

// History returns the most recent sync runs.
func (a *DocSyncApp) History(ctx context.Context, limit int) ([]*docsync.SyncRun, error) {
	return a.db.ListSyncRuns(ctx, limit)
}

// GetState returns a raw state value and whether it is set.
func (a *DocSyncApp) GetState(ctx context.Context, key string) (string, bool, error) {
	return a.db.GetState(ctx, key)
}

func (a *DocSyncApp) SetState(ctx context.Context, key, value string) error {
	return a.db.SetState(ctx, key, value)
}

// SetForceUpdate makes content workers re-render unchanged files.
func (a *DocSyncApp) SetForceUpdate(ctx context.Context, on bool) error {
	if err := a.db.SetState(ctx, docsync.StateForceUpdate, boolValue(on)); err != nil {
		return err
	}
	a.logger.Info("force update changed", "enabled", on)
	return nil
}

// MaintenanceMode reports whether the site is in maintenance mode.
func (a *DocSyncApp) MaintenanceMode(ctx context.Context) (bool, error) {
	return a.boolState(ctx, docsync.StateMaintenanceMode)
}

// RequestSourceUpdate publishes an update request: the checkout is pulled and
// the queue rebuilt from it.
func (a *DocSyncApp) RequestSourceUpdate(ctx context.Context) error {
	return a.bus.Publish(ctx, events.Event{Topic: events.TopicUpdateRequested})
}

func (a *DocSyncApp) onUpdateRequested(ctx context.Context, _ events.Event) error {
	op := NewSyncOperation("GitPull", a.git.Dir())
	err := track(ctx, a.db, a.logger, op, func() (int64, error) {
		return 0, a.git.Pull(ctx)
	})
	if err != nil {
		return fmt.Errorf("pulling source repository: %w", err)
	}
	return a.bus.Publish(ctx, events.Event{Topic: events.TopicPullFinished, Path: a.git.Dir()})
}

func (a *DocSyncApp) onPullFinished(ctx context.Context, ev events.Event) error {
	dir := ev.Path
	if a.cfg.Source.DocsSubdir != "" {
		dir = filepath.Join(dir, a.cfg.Source.DocsSubdir)
	}
	_, err := a.BuildFromPath(ctx, dir)
	return err
}

// Watch rebuilds and drains the queue whenever the docs dir changes, until
// ctx is cancelled.
func (a *DocSyncApp) Watch(ctx context.Context, debounce time.Duration) error {
	dir, err := a.resolveDir("")
	if err != nil {
		return err
	}
	w := watch.New(dir, debounce, func(ctx context.Context) error {
		n, err := a.SyncOnce(ctx, 0)
		if err != nil {
			return err
		}
		a.logger.Info("sync after change finished", "processed", n)
		return nil
	}, a.logger)
	return w.Run(ctx)
}

// MediaHandler serves mirrored images from the configured blob store.
func (a *DocSyncApp) MediaHandler() http.Handler {
	return media.Handler(a.blobs)
}

// MigrateDatabase applies pending schema migrations to the configured
// database without wiring the rest of the app, which refuses to start on an
// outdated schema. It returns the status after migrating.
func MigrateDatabase(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, docsync.RealClock{}, docsync.UUIDGenerator{})
	if err != nil {
		return migrations.Status{}, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return migrations.Status{}, err
	}
	return db.MigrationStatus()
}

// BackupDatabase writes a consistent copy of the database to destPath.
func (a *DocSyncApp) BackupDatabase(destPath string) error {
	abs, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("backup destination already exists: %s", abs)
	}
	return a.db.BackupTo(abs)
}

// Schema returns the CREATE statements of the database.
func (a *DocSyncApp) Schema(ctx context.Context) (string, error) {
	return a.db.Schema(ctx)
}

// Logger returns the app's logger.
func (a *DocSyncApp) Logger() docsync.Logger {
	return a.logger
}

func (a *DocSyncApp) intState(ctx context.Context, key string) (int64, error) {
	v, ok, err := a.db.GetState(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("state %s: %w", key, err)
	}
	return n, nil
}

func (a *DocSyncApp) boolState(ctx context.Context, key string) (bool, error) {
	v, ok, err := a.db.GetState(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return v == "1" || v == "true", nil
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Close releases the database, the cache connection, the media fetch cache
// and the log file.
func (a *DocSyncApp) Close() error {
	var firstErr error

	a.media.Close()
	if err := a.closeCache(); err != nil {
		firstErr = fmt.Errorf("closing cache: %w", err)
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
