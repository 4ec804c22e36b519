package docsync

import (
	"path"
	"strings"
	"time"
)

// SourceFile is a single file discovered in the documentation repository.
// RelativePath is relative to the locale directory and always slash separated.
type SourceFile struct {
	Path           string `json:"path"`
	RelativePath   string `json:"relative_path"`
	Locale         string `json:"locale"`
	LastRevisionID string `json:"last_revision_id,omitempty"`
}

// ExternalIDFromPath derives a stable content id from a relative path when the
// document does not declare one: "guide/install.md" becomes "guide/install".
func ExternalIDFromPath(relativePath string) string {
	p := strings.TrimPrefix(path.Clean("/"+relativePath), "/")
	return strings.TrimSuffix(p, path.Ext(p))
}

// Category places a content record in a navigation area.
type Category struct {
	Area  string `json:"area" yaml:"area"`
	Order int    `json:"order" yaml:"order"`
	Title string `json:"title" yaml:"title"`
}

// ContentRecord is the persisted representation of one document in one locale.
// (ExternalID, Locale) is unique.
type ContentRecord struct {
	ID               int64
	ExternalID       string
	Locale           string
	Title            string
	RelativePathname string
	CoreVersion      string
	Category         *Category
	Body             string
	SourceRevision   string
	SourceHash       string
	SyncTimestamp    int64
	Published        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RedirectRecord maps an old path to a new one within a locale.
// (SourcePath, Locale) is unique.
type RedirectRecord struct {
	ID            int64
	SourcePath    string
	TargetPath    string
	Locale        string
	SyncTimestamp int64
}

// ContentMeta is the front matter of a source document.
type ContentMeta struct {
	ID       string    `yaml:"id"`
	Title    string    `yaml:"title"`
	Core     string    `yaml:"core"`
	Category *Category `yaml:"category"`
}

// ImageRef is an image referenced from a document body.
type ImageRef struct {
	Src string
	Alt string
}

// ContentDocument is a parsed source document.
type ContentDocument struct {
	Meta   ContentMeta
	Body   []byte
	Images []ImageRef

	// Heading is the text of the first level-one heading, used when the
	// front matter has no title.
	Heading string
}

// RedirectRule is one row of a redirect declaration file.
type RedirectRule struct {
	Source string
	Target string
}

// MediaRef is a mirrored image.
type MediaRef struct {
	ID       string
	Checksum string
	URL      string
	Alt      string
}

// MediaRecord is the persisted index entry for a mirrored image.
type MediaRecord struct {
	ID        string
	Checksum  string
	SourceURI string
	Filename  string
	Alt       string
	CreatedAt time.Time
}

// SyncRun records one CLI or admin operation that touched the queue.
type SyncRun struct {
	ID         int64      `json:"id"`
	Operation  string     `json:"operation"`
	Parameters string     `json:"parameters"`
	Status     string     `json:"status"`
	Processed  int64      `json:"processed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
