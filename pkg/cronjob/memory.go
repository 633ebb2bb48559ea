package cronjob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend is an in-memory Backend implementation. It backs tests
// and embedded deployments where no real cron daemon is available, and
// is the substitutable fake for everything that consumes a Backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[Tag]Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[Tag]Entry)}
}

func (b *MemoryBackend) Create(_ context.Context, tag Tag, spec EntrySpec) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[tag]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryExists, tag)
	}
	e := Entry{Tag: tag, Schedule: spec.Schedule, Command: spec.Command}
	b.entries[tag] = e
	return e, nil
}

func (b *MemoryBackend) Get(_ context.Context, tag Tag) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[tag]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, tag)
	}
	return e, nil
}

func (b *MemoryBackend) List(_ context.Context) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	return out, nil
}

func (b *MemoryBackend) Edit(_ context.Context, tag Tag, spec EntrySpec) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[tag]; !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, tag)
	}
	e := Entry{Tag: tag, Schedule: spec.Schedule, Command: spec.Command}
	b.entries[tag] = e
	return e, nil
}

func (b *MemoryBackend) Delete(_ context.Context, tag Tag) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[tag]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, tag)
	}
	delete(b.entries, tag)
	return nil
}
