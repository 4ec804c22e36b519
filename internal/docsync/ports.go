package docsync

import (
	"context"
	"io"
)

// Finder discovers source files below a documentation root.
type Finder interface {
	// FindContent returns content files grouped by locale, in a stable order.
	FindContent(root string) ([]SourceFile, error)

	// FindRedirects returns redirect declaration files grouped by locale.
	FindRedirects(root string) ([]SourceFile, error)

	// ReadFile returns the bytes of a discovered file.
	ReadFile(path string) ([]byte, error)
}

// ContentParser turns document bytes into structured content and renders it.
type ContentParser interface {
	Parse(data []byte) (*ContentDocument, error)

	// Render converts the document body to HTML. images maps an original image
	// source to its mirrored URL; unmapped sources are rendered unchanged.
	Render(doc *ContentDocument, images map[string]string) (string, error)
}

// RedirectParser reads redirect declaration files.
type RedirectParser interface {
	// ParseRedirects returns the valid rules and one error per skipped row.
	// The error return is reserved for files that cannot be read at all.
	ParseRedirects(r io.Reader) ([]RedirectRule, []error, error)
}

// MediaRepository mirrors images into local media storage.
type MediaRepository interface {
	// SaveByURI stores the image at uri (a local path or an http(s) URL) and
	// returns its reference. A nil reference with nil error means the image
	// could not be fetched and should be left as is.
	SaveByURI(ctx context.Context, uri, alt string) (*MediaRef, error)
}

// CacheInvalidator drops cached renderings associated with tags.
type CacheInvalidator interface {
	InvalidateTags(ctx context.Context, tags []string) error
}
