package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func blobStores(t *testing.T) map[string]BlobStore {
	t.Helper()
	fs, err := NewFileSystemStore(filepath.Join(t.TempDir(), "media"))
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	return map[string]BlobStore{
		"memory":     NewMemoryStore(),
		"filesystem": fs,
	}
}

func TestBlobStore_PutGet(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		data    string
		size    int64
		wantErr bool
	}{
		{name: "store content successfully", key: "abc123.png", data: "png bytes", size: 9},
		{name: "size mismatch", key: "def456.png", data: "hello", size: 100, wantErr: true},
		{name: "empty content", key: "empty.gif", data: "", size: 0},
	}

	for storeName, store := range blobStores(t) {
		for _, tt := range tests {
			t.Run(storeName+"/"+tt.name, func(t *testing.T) {
				ctx := context.Background()
				err := store.Put(ctx, tt.key, strings.NewReader(tt.data), tt.size, "image/png")
				if (err != nil) != tt.wantErr {
					t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
				}
				if tt.wantErr {
					return
				}

				var buf bytes.Buffer
				if err := store.Get(ctx, tt.key, &buf); err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if buf.String() != tt.data {
					t.Errorf("Get() = %q, want %q", buf.String(), tt.data)
				}

				ok, err := store.Exists(ctx, tt.key)
				if err != nil || !ok {
					t.Errorf("Exists() = %v, %v; want true", ok, err)
				}
			})
		}
	}
}

func TestBlobStore_Missing(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var buf bytes.Buffer
			if err := store.Get(ctx, "missing.png", &buf); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("Get() error = %v, want ErrBlobNotFound", err)
			}
			ok, err := store.Exists(ctx, "missing.png")
			if err != nil || ok {
				t.Errorf("Exists() = %v, %v; want false", ok, err)
			}
			if err := store.ValidateSetup(ctx); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestFileSystemStore_PutIsIdempotent(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "k.png", strings.NewReader("first"), 5, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "k.png", strings.NewReader("other"), 5, ""); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "k.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("content = %q, want the first write to be kept", data)
	}

	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestFileSystemStore_RejectsPathKeys(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	for _, key := range []string{"", "../escape.png", "sub/dir.png", ".hidden"} {
		if err := s.Put(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("Put(%q) error = nil, want error", key)
		}
	}
}

func TestFileSystemStore_ValidateSetup(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")
	s, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if err := s.ValidateSetup(context.Background()); err != nil {
		t.Fatalf("ValidateSetup() error = %v", err)
	}

	os.RemoveAll(root)
	if err := s.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() error = nil after root was removed")
	}
}
