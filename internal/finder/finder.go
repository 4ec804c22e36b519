package finder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"docsync/internal/docsync"
)

// Options controls which files under a source root are discovered.
type Options struct {
	// Locales restricts discovery to these first-level directories. Empty
	// means every non-hidden first-level directory is a locale.
	Locales           []string
	ContentExtensions []string
	RedirectFile      string
	Ignore            []string
}

// RevisionResolver maps absolute file paths to the id of the last revision
// that touched them.
type RevisionResolver interface {
	LastRevisions(root string) (map[string]string, error)
}

// SourceFinder discovers documentation files on the local filesystem.
// Each first-level directory of the root is a locale.
type SourceFinder struct {
	opts      Options
	revisions RevisionResolver
	logger    docsync.Logger
}

// New creates a SourceFinder. revisions may be nil.
func New(opts Options, revisions RevisionResolver, logger docsync.Logger) *SourceFinder {
	if len(opts.ContentExtensions) == 0 {
		opts.ContentExtensions = []string{".md"}
	}
	if opts.RedirectFile == "" {
		opts.RedirectFile = "redirects.csv"
	}
	return &SourceFinder{opts: opts, revisions: revisions, logger: logger}
}

func (f *SourceFinder) FindContent(root string) ([]docsync.SourceFile, error) {
	return f.find(root, f.isContent)
}

func (f *SourceFinder) FindRedirects(root string) ([]docsync.SourceFile, error) {
	return f.find(root, func(name string) bool { return name == f.opts.RedirectFile })
}

func (f *SourceFinder) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (f *SourceFinder) isContent(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range f.opts.ContentExtensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// ResolveRoot validates root and returns it as an absolute path.
func ResolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", root, docsync.ErrInvalidSourceDirectory, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", abs, docsync.ErrInvalidSourceDirectory, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w: not a directory", abs, docsync.ErrInvalidSourceDirectory)
	}
	return abs, nil
}

func (f *SourceFinder) find(root string, match func(name string) bool) ([]docsync.SourceFile, error) {
	abs, err := ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", abs, docsync.ErrInvalidSourceDirectory, err)
	}

	ignore, err := f.ignoreMatcher(abs)
	if err != nil {
		return nil, err
	}

	// os.ReadDir and filepath.WalkDir both return entries in lexical order,
	// so the result is grouped by locale and sorted within each locale.
	var files []docsync.SourceFile
	for _, entry := range entries {
		locale := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(locale, ".") || ignore.Match(locale, true) {
			continue
		}
		if len(f.opts.Locales) > 0 && !slices.Contains(f.opts.Locales, locale) {
			continue
		}

		found, err := f.walkLocale(abs, locale, ignore, match)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	f.attachRevisions(abs, files)
	return files, nil
}

func (f *SourceFinder) walkLocale(root, locale string, ignore *IgnoreMatcher, match func(string) bool) ([]docsync.SourceFile, error) {
	localeDir := filepath.Join(root, locale)
	var files []docsync.SourceFile

	err := filepath.WalkDir(localeDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == localeDir {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.Match(rel, false) || !match(d.Name()) {
			return nil
		}

		files = append(files, docsync.SourceFile{
			Path:         p,
			RelativePath: strings.TrimPrefix(rel, locale+"/"),
			Locale:       locale,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking locale %s: %w", locale, err)
	}
	return files, nil
}

func (f *SourceFinder) ignoreMatcher(root string) (*IgnoreMatcher, error) {
	patterns := append([]string{IgnoreFileName}, f.opts.Ignore...)
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(append(patterns, fromFile...)), nil
}

func (f *SourceFinder) attachRevisions(root string, files []docsync.SourceFile) {
	if f.revisions == nil || len(files) == 0 {
		return
	}
	revs, err := f.revisions.LastRevisions(root)
	if err != nil {
		f.logger.Warn("last revision lookup failed", "root", root, "error", err)
		return
	}
	for i := range files {
		files[i].LastRevisionID = revs[files[i].Path]
	}
}

var _ docsync.Finder = (*SourceFinder)(nil)
