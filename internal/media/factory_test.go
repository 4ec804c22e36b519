package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"docsync/internal/config"
)

func TestNewBlobStoreFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.MediaConfig
		wantType  string
		wantErr   bool
		errSubstr string
	}{
		{
			name:     "memory store",
			cfg:      config.MediaConfig{Type: "memory"},
			wantType: "*media.MemoryStore",
		},
		{
			name:     "filesystem store",
			cfg:      config.MediaConfig{Type: "filesystem", FSRoot: filepath.Join(t.TempDir(), "media")},
			wantType: "*media.FileSystemStore",
		},
		{
			name:      "filesystem store - missing root",
			cfg:       config.MediaConfig{Type: "filesystem"},
			wantErr:   true,
			errSubstr: "fs_root",
		},
		{
			name:      "s3 store - missing bucket",
			cfg:       config.MediaConfig{Type: "s3", S3Region: "us-east-1"},
			wantErr:   true,
			errSubstr: "bucket",
		},
		{
			name:      "unknown type",
			cfg:       config.MediaConfig{Type: "ftp"},
			wantErr:   true,
			errSubstr: "unknown media type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewBlobStoreFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewBlobStoreFromConfig() error = nil, want error")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("error = %q, want substring %q", err, tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBlobStoreFromConfig() error = %v", err)
			}
			if got := fmt.Sprintf("%T", store); got != tt.wantType {
				t.Errorf("store type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestNewS3StoreStaticCredentials(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Options{
		Bucket:       "docs-media",
		Prefix:       "images",
		Region:       "us-east-1",
		Endpoint:     "http://127.0.0.1:9000",
		UsePathStyle: true,
		AccessKey:    "key",
		SecretKey:    "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}
	if got := s.key("abc.png"); got != "images/abc.png" {
		t.Errorf("key() = %q, want images/abc.png", got)
	}
}
