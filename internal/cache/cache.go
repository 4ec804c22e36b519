// Package cache invalidates cached renderings of synced content by tag.
package cache

import (
	"context"
	"slices"
	"sync"

	"docsync/internal/docsync"
)

// Nop discards invalidations. Used when no rendering cache is configured.
type Nop struct{}

func (Nop) InvalidateTags(context.Context, []string) error { return nil }

// Memory records invalidated tags in order. Safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	calls [][]string
	fail  error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InvalidateTags(_ context.Context, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.calls = append(m.calls, slices.Clone(tags))
	return nil
}

// Fail makes every following InvalidateTags call return err. nil resets it.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns a copy of every tag list passed to InvalidateTags.
func (m *Memory) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

// Tags returns the distinct invalidated tags in first-seen order.
func (m *Memory) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	seen := make(map[string]bool)
	for _, c := range m.calls {
		for _, t := range c {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Reset forgets recorded calls.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var (
	_ docsync.CacheInvalidator = Nop{}
	_ docsync.CacheInvalidator = (*Memory)(nil)
)
