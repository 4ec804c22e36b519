package testutil

import (
	"fmt"
	"path"
	"sort"
	"sync"

	"docsync/internal/docsync"
)

// MockFinder is an in-memory documentation tree. Paths are "<root>/<locale>/<relative>".
type MockFinder struct {
	mu            sync.Mutex
	root          string
	content       map[string]docsync.SourceFile
	redirects     map[string]docsync.SourceFile
	data          map[string][]byte
	readFailures  map[string]error
	redirectFiles string
}

// NewMockFinder creates a MockFinder whose valid root is root.
func NewMockFinder(root string) *MockFinder {
	return &MockFinder{
		root:          root,
		content:       make(map[string]docsync.SourceFile),
		redirects:     make(map[string]docsync.SourceFile),
		data:          make(map[string][]byte),
		readFailures:  make(map[string]error),
		redirectFiles: "redirects.csv",
	}
}

// AddContent adds a content file and returns its absolute path.
func (m *MockFinder) AddContent(locale, relativePath string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := path.Join(m.root, locale, relativePath)
	m.content[p] = docsync.SourceFile{Path: p, RelativePath: relativePath, Locale: locale}
	m.data[p] = data
	return p
}

// AddRedirects adds a redirect declaration file for locale.
func (m *MockFinder) AddRedirects(locale string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := path.Join(m.root, locale, m.redirectFiles)
	m.redirects[p] = docsync.SourceFile{Path: p, RelativePath: m.redirectFiles, Locale: locale}
	m.data[p] = data
	return p
}

// Remove deletes a file from the tree.
func (m *MockFinder) Remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, p)
	delete(m.redirects, p)
	delete(m.data, p)
}

// FailRead makes ReadFile fail for p while the file is still discovered.
func (m *MockFinder) FailRead(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFailures[p] = err
}

func (m *MockFinder) FindContent(root string) ([]docsync.SourceFile, error) {
	return m.find(root, m.content)
}

func (m *MockFinder) FindRedirects(root string) ([]docsync.SourceFile, error) {
	return m.find(root, m.redirects)
}

func (m *MockFinder) find(root string, files map[string]docsync.SourceFile) ([]docsync.SourceFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if root != m.root {
		return nil, fmt.Errorf("%s: %w", root, docsync.ErrInvalidSourceDirectory)
	}
	out := make([]docsync.SourceFile, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Locale != out[j].Locale {
			return out[i].Locale < out[j].Locale
		}
		return out[i].RelativePath < out[j].RelativePath
	})
	return out, nil
}

func (m *MockFinder) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.readFailures[p]; ok {
		return nil, err
	}
	data, ok := m.data[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	return data, nil
}

var _ docsync.Finder = (*MockFinder)(nil)
