package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mubo-H/inventory-api/internal/model"
)

// MemoryBackend implements Backend with an in-memory collection.
type MemoryBackend struct {
	mu       sync.RWMutex
	items    []model.Item
	writes   int
	writeErr error
}

// NewMemoryBackend creates a MemoryBackend seeded with a copy of items.
func NewMemoryBackend(items ...model.Item) *MemoryBackend {
	seed := make([]model.Item, len(items))
	copy(seed, items)

	return &MemoryBackend{
		items: seed,
	}
}

// ReadAll returns a copy of the stored collection.
func (b *MemoryBackend) ReadAll(ctx context.Context) ([]model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read items: %w", ctx.Err())
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	items := make([]model.Item, len(b.items))
	copy(items, b.items)

	return items, nil
}

// WriteAll replaces the stored collection with a copy of items.
func (b *MemoryBackend) WriteAll(ctx context.Context, items []model.Item) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("write items: %w", ctx.Err())
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeErr != nil {
		return b.writeErr
	}

	stored := make([]model.Item, len(items))
	copy(stored, items)
	b.items = stored
	b.writes++

	return nil
}

// FailWrites makes every following WriteAll return err. A nil err restores writes.
func (b *MemoryBackend) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writeErr = err
}

// Writes returns how many times the collection was replaced.
func (b *MemoryBackend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.writes
}
