package docsync

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestSourceHash(t *testing.T) {
	sum := sha256.Sum256([]byte("# Title\n\nbody\n"))
	want := hex.EncodeToString(sum[:])

	tests := []struct {
		name string
		data string
	}{
		{name: "lf", data: "# Title\n\nbody\n"},
		{name: "crlf", data: "# Title\r\n\r\nbody\r\n"},
		{name: "lone cr", data: "# Title\r\rbody\r"},
		{name: "bom", data: "\xEF\xBB\xBF# Title\n\nbody\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SourceHash([]byte(tt.data)); got != want {
				t.Errorf("SourceHash() = %s, want %s", got, want)
			}
		})
	}
}

func TestSourceHash_Stable(t *testing.T) {
	data := []byte("---\ntitle: Install\n---\n# Install\n")
	first := SourceHash(data)
	for range 3 {
		if got := SourceHash(data); got != first {
			t.Fatalf("SourceHash() changed between calls: %s != %s", got, first)
		}
	}
	if SourceHash([]byte("# Install!\n")) == SourceHash([]byte("# Install\n")) {
		t.Error("different content hashed equal")
	}
	if len(first) != 64 {
		t.Errorf("SourceHash() length = %d, want 64 hex chars", len(first))
	}
}

func TestNormalizeSource_NoCopyWithoutCR(t *testing.T) {
	data := []byte("plain\n")
	if got := NormalizeSource(data); &got[0] != &data[0] {
		t.Error("NormalizeSource() copied input without carriage returns")
	}
}

func TestContentRecord_CacheTags(t *testing.T) {
	b64 := func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return base64.RawURLEncoding.EncodeToString(sum[:])
	}

	tests := []struct {
		name string
		rec  ContentRecord
		want []string
	}{
		{
			name: "without category",
			rec:  ContentRecord{ExternalID: "guide/install", Locale: "en", RelativePathname: "guide/install.md"},
			want: []string{
				"content:en:guide/install",
				"content:relative_pathname:" + b64("guide/install.md"),
			},
		},
		{
			name: "with category",
			rec: ContentRecord{
				ExternalID: "faq", Locale: "ru", RelativePathname: "faq.md",
				Category: &Category{Area: "help", Order: 2},
			},
			want: []string{
				"content:ru:faq",
				"content:relative_pathname:" + b64("faq.md"),
				"content_category:" + b64("help"),
			},
		},
		{
			name: "empty category area",
			rec:  ContentRecord{ExternalID: "a", Locale: "en", RelativePathname: "a.md", Category: &Category{Title: "x"}},
			want: []string{
				"content:en:a",
				"content:relative_pathname:" + b64("a.md"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.CacheTags(); !slices.Equal(got, tt.want) {
				t.Errorf("CacheTags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExternalIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"index.md", "index"},
		{"guide/install.md", "guide/install"},
		{"guide/../faq.md", "faq"},
		{"/abs/page.MD", "abs/page"},
		{"no-extension", "no-extension"},
	}
	for _, tt := range tests {
		if got := ExternalIDFromPath(tt.path); got != tt.want {
			t.Errorf("ExternalIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestResultFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "nil", err: nil, want: OutcomeSuccess},
		{name: "storage", err: fmt.Errorf("saving: %w", ErrStorageUnavailable), want: OutcomeSuspend},
		{name: "requeue", err: fmt.Errorf("locked: %w", ErrRequeue), want: OutcomeRequeue},
		{name: "other", err: errors.New("boom"), want: OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResultFromError(tt.err)
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %v, want %v", res.Outcome, tt.want)
			}
			if !errors.Is(res.Err, tt.err) {
				t.Errorf("Err = %v, want %v", res.Err, tt.err)
			}
		})
	}
}

func TestIsPartialFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "parse error", err: &ParseError{Path: "a.md", Err: errors.New("bad yaml")}, want: true},
		{name: "wrapped read error", err: fmt.Errorf("x: %w", &SourceReadError{Path: "a.md", Err: errors.New("gone")}), want: true},
		{name: "storage", err: ErrStorageUnavailable, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPartialFailure(tt.err); got != tt.want {
				t.Errorf("IsPartialFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRedirectPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"old", "/old"},
		{" /kept ", "/kept"},
		{"https://example.com/x", "https://example.com/x"},
		{"guide/install", "/guide/install"},
	}
	for _, tt := range tests {
		if got := NormalizeRedirectPath(tt.in); got != tt.want {
			t.Errorf("NormalizeRedirectPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveImageURI(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"img/a.png", "/docs/en/guide/img/a.png"},
		{"../shared/b.png", "/docs/en/shared/b.png"},
		{"../../assets/c.png", "/docs/assets/c.png"},
		{"../../../outside.png", ""},
		{"../../../../etc/passwd", ""},
		{"img/../../../../../etc/passwd", ""},
		{"https://cdn.example.com/c.png", "https://cdn.example.com/c.png"},
		{"/site/absolute.png", ""},
		{"data:image/png;base64,AAAA", ""},
		{"#anchor", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := resolveImageURI("/docs", "/docs/en/guide/install.md", tt.src); got != tt.want {
			t.Errorf("resolveImageURI(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestSourceRoot(t *testing.T) {
	tests := []struct {
		name string
		file SourceFile
		want string
	}{
		{name: "nested", file: SourceFile{Path: "/srv/docs/en/guide/page.md", RelativePath: "guide/page.md", Locale: "en"}, want: "/srv/docs"},
		{name: "top level", file: SourceFile{Path: "/srv/docs/ru/index.md", RelativePath: "index.md", Locale: "ru"}, want: "/srv/docs"},
		{name: "mismatched relative path", file: SourceFile{Path: "/srv/docs/en/a.md", RelativePath: "b.md"}, want: "/srv/docs/en"},
		{name: "no relative path", file: SourceFile{Path: "/srv/docs/en/a.md"}, want: "/srv/docs/en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sourceRoot(tt.file); got != tt.want {
				t.Errorf("sourceRoot() = %q, want %q", got, tt.want)
			}
		})
	}
}
