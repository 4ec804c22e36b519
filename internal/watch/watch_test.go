package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"docsync/internal/docsync"
)

func startWatcher(t *testing.T, root string) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	w := New(root, 50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, docsync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})

	// Give the watcher time to register its watches.
	time.Sleep(100 * time.Millisecond)
	return &calls
}

func waitFor(t *testing.T, calls *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("onChange called %d times, want %d", calls.Load(), want)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "en"), 0755); err != nil {
		t.Fatal(err)
	}
	calls := startWatcher(t, root)

	for i := 0; i < 5; i++ {
		name := filepath.Join(root, "en", "page"+string(rune('a'+i))+".md")
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, calls, 1)
	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onChange called %d times for one burst, want 1", got)
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	calls := startWatcher(t, root)

	dir := filepath.Join(root, "ru", "guide")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, calls, 1)

	// Let the new directories be registered before writing into them.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "install.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, calls, 2)
}

func TestWatcher_Hidden(t *testing.T) {
	w := New("/docs", 0, nil, docsync.NewNopLogger())
	tests := []struct {
		path string
		want bool
	}{
		{"/docs/en/a.md", false},
		{"/docs/.git/index", true},
		{"/docs/en/.a.md.swp", true},
		{"/docs", false},
	}
	for _, tt := range tests {
		if got := w.hidden(tt.path); got != tt.want {
			t.Errorf("hidden(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
