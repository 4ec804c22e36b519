package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docsync/internal/config"
	"docsync/internal/docsync"
	"docsync/internal/testutil"
)

func writeDocs(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestApp(t *testing.T) (*DocSyncApp, string, *testutil.StubClock) {
	t.Helper()

	repoDir := t.TempDir()
	writeDocs(t, repoDir, map[string]string{
		"en/index.md":         "---\ntitle: Home\n---\n# Welcome\n",
		"en/guide/install.md": "# Install\n\nRun the installer.\n",
		"en/redirects.csv":    "source,target\nold-install,guide/install\n",
	})

	cfg := config.NewConfig(t.TempDir(), repoDir)
	cfg.Media = config.MediaConfig{Type: "memory", PublicBaseURL: "/media"}
	cfg.Cache = config.CacheConfig{Type: "memory"}

	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t, clock)

	a, err := newDocSyncApp(context.Background(), cfg, db, docsync.NewNopLogger(), clock)
	if err != nil {
		t.Fatalf("newDocSyncApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, repoDir, clock
}

func TestDocSyncApp_BuildAndRun(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	summary, err := a.BuildFromPath(ctx, "")
	if err != nil {
		t.Fatalf("BuildFromPath() error = %v", err)
	}
	if summary.ContentFiles != 2 || summary.RedirectFiles != 1 {
		t.Errorf("summary = %+v, want 2 content files and 1 redirect file", summary)
	}
	if summary.Items() != 3 {
		t.Errorf("Items() = %d, want 3", summary.Items())
	}

	st, err := a.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus() error = %v", err)
	}
	if st.Items != 3 || st.LastSyncTimestamp != summary.PassStart {
		t.Errorf("status = %+v, want 3 items synced at %d", st, summary.PassStart)
	}

	processed, err := a.RunQueue(ctx, time.Minute)
	if err != nil {
		t.Fatalf("RunQueue() error = %v", err)
	}
	if processed != 3 {
		t.Errorf("RunQueue() = %d, want 3", processed)
	}

	total, rows, err := a.ListContent(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListContent() error = %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("ListContent() = %d rows (total %d), want 2", len(rows), total)
	}

	redirects, err := a.ListRedirects(ctx, "en")
	if err != nil {
		t.Fatalf("ListRedirects() error = %v", err)
	}
	if len(redirects) != 1 || redirects[0].SourcePath != "/old-install" {
		t.Errorf("ListRedirects() = %+v, want /old-install", redirects)
	}

	runs, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 || runs[0].Operation != "QueueRun" || runs[1].Operation != "QueueBuild" {
		t.Errorf("History() = %+v, want QueueRun then QueueBuild", runs)
	}
}

func TestDocSyncApp_RemovedFileIsCleanedUp(t *testing.T) {
	a, repoDir, clock := newTestApp(t)
	ctx := context.Background()

	if _, err := a.SyncOnce(ctx, time.Minute); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}

	if err := os.Remove(filepath.Join(repoDir, "en", "guide", "install.md")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)

	if _, err := a.SyncOnce(ctx, time.Minute); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}

	total, rows, err := a.ListContent(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListContent() error = %v", err)
	}
	if total != 1 || rows[0].ExternalID != "index" {
		t.Errorf("ListContent() = %d rows, want only index", total)
	}

	st, err := a.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus() error = %v", err)
	}
	if st.LastCleanupTimestamp != clock.Now().Unix() {
		t.Errorf("LastCleanupTimestamp = %d, want %d", st.LastCleanupTimestamp, clock.Now().Unix())
	}
}

func TestDocSyncApp_InvalidDirKeepsQueue(t *testing.T) {
	a, repoDir, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.BuildFromPath(ctx, ""); err != nil {
		t.Fatalf("BuildFromPath() error = %v", err)
	}

	_, err := a.BuildFromPath(ctx, filepath.Join(repoDir, "missing"))
	if !errors.Is(err, docsync.ErrInvalidSourceDirectory) {
		t.Fatalf("BuildFromPath(missing) error = %v, want ErrInvalidSourceDirectory", err)
	}

	st, err := a.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus() error = %v", err)
	}
	if st.Items != 3 {
		t.Errorf("queue items = %d after failed build, want 3", st.Items)
	}
	if st.Runs[0].Status != StatusError {
		t.Errorf("latest run status = %q, want %q", st.Runs[0].Status, StatusError)
	}
}

func TestDocSyncApp_ClearQueue(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.BuildFromPath(ctx, ""); err != nil {
		t.Fatalf("BuildFromPath() error = %v", err)
	}
	if err := a.ClearQueue(ctx); err != nil {
		t.Fatalf("ClearQueue() error = %v", err)
	}
	st, err := a.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus() error = %v", err)
	}
	if st.Items != 0 {
		t.Errorf("queue items = %d after clear, want 0", st.Items)
	}
	if st.Runs[0].Operation != "QueueClear" || st.Runs[0].Processed != 3 {
		t.Errorf("latest run = %+v, want QueueClear of 3 items", st.Runs[0])
	}

	// Clearing an empty queue is a no-op.
	if err := a.ClearQueue(ctx); err != nil {
		t.Fatalf("ClearQueue() on empty queue error = %v", err)
	}
}

func TestDocSyncApp_Settings(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if err := a.SetForceUpdate(ctx, true); err != nil {
		t.Fatalf("SetForceUpdate() error = %v", err)
	}
	if err := a.SetState(ctx, docsync.StateMaintenanceMode, "1"); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	st, err := a.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus() error = %v", err)
	}
	if !st.ForceUpdate || !st.MaintenanceMode {
		t.Errorf("status force_update=%v maintenance_mode=%v, want both true", st.ForceUpdate, st.MaintenanceMode)
	}

	v, ok, err := a.GetState(ctx, docsync.StateForceUpdate)
	if err != nil || !ok || v != "1" {
		t.Errorf("GetState(force_update) = %q, %v, %v; want \"1\", true, nil", v, ok, err)
	}
}

func TestDocSyncApp_RequestSourceUpdateOutsideGit(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if err := a.RequestSourceUpdate(ctx); err == nil {
		t.Fatal("RequestSourceUpdate() error = nil, want pull failure outside a git checkout")
	}

	st, err := a.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus() error = %v", err)
	}
	if st.Items != 0 {
		t.Errorf("queue items = %d after failed pull, want 0", st.Items)
	}
	if len(st.Runs) != 1 || st.Runs[0].Operation != "GitPull" || st.Runs[0].Status != StatusError {
		t.Errorf("runs = %+v, want one failed GitPull", st.Runs)
	}
}

func TestDocSyncApp_BackupDatabaseRefusesExisting(t *testing.T) {
	a, _, _ := newTestApp(t)

	dest := filepath.Join(t.TempDir(), "existing.db")
	if err := os.WriteFile(dest, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := a.BackupDatabase(dest); err == nil {
		t.Error("BackupDatabase() onto an existing file error = nil, want error")
	}
}

func TestMigrateDatabase(t *testing.T) {
	cfg := config.NewConfig(t.TempDir(), t.TempDir())

	st, err := MigrateDatabase(cfg)
	if err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	if st.Dirty || st.Current != st.Latest {
		t.Errorf("status after migrate = %+v, want current == latest", st)
	}

	// A second run is a no-op.
	if _, err := MigrateDatabase(cfg); err != nil {
		t.Fatalf("second MigrateDatabase() error = %v", err)
	}
}
