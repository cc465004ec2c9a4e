package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/Mubo-H/inventory-api/internal/model"
)

// Operation results recorded in metrics.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

var storeOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "item_store_operations_total",
		Help: "Total number of item store operations by result",
	},
	[]string{"operation", "result"},
)

// ItemStore implements Store by loading the whole collection from a Backend
// on every call and writing it back after each mutation.
type ItemStore struct {
	backend   Backend
	logger    *zap.Logger
	serialize bool
	mu        sync.Mutex
}

// NewItemStore creates an ItemStore. When serializeWrites is set, every
// read-modify-write cycle runs under a single mutex; otherwise concurrent
// mutations race and the last writer wins.
func NewItemStore(backend Backend, logger *zap.Logger, serializeWrites bool) *ItemStore {
	return &ItemStore{
		backend:   backend,
		logger:    logger,
		serialize: serializeWrites,
	}
}

// List returns all items from the store.
func (s *ItemStore) List(ctx context.Context) ([]model.Item, error) {
	items, err := s.load(ctx)
	observe("list", err)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Get retrieves an item by its ID.
func (s *ItemStore) Get(ctx context.Context, id int) (*model.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		observe("get", err)
		return nil, err
	}

	idx := indexOf(items, id)
	if idx < 0 {
		observe("get", ErrNotFound)
		return nil, ErrNotFound
	}

	observe("get", nil)
	item := items[idx]
	return &item, nil
}

// Create appends a new item. Its ID is the last stored item's ID plus one,
// or 1 for an empty collection.
func (s *ItemStore) Create(ctx context.Context, req model.CreateItemRequest) (*model.Item, error) {
	unlock := s.lock()
	defer unlock()

	item, err := s.create(ctx, req)
	observe("create", err)
	return item, err
}

func (s *ItemStore) create(ctx context.Context, req model.CreateItemRequest) (*model.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	id := 1
	if len(items) > 0 {
		id = items[len(items)-1].ID + 1
	}

	item := req.ToItem(id)
	items = append(items, item)

	if err := s.save(ctx, items); err != nil {
		return nil, err
	}

	s.logger.Debug("item created", zap.Int("id", item.ID))
	return &item, nil
}

// Update merges the patch onto an existing item.
func (s *ItemStore) Update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error) {
	unlock := s.lock()
	defer unlock()

	item, err := s.update(ctx, id, patch)
	observe("update", err)
	return item, err
}

func (s *ItemStore) update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(items, id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	merged, err := items[idx].Apply(patch)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	items[idx] = merged

	if err := s.save(ctx, items); err != nil {
		return nil, err
	}

	s.logger.Debug("item updated", zap.Int("id", id), zap.Int("new_id", merged.ID))
	return &merged, nil
}

// Delete removes an item from the store by its ID.
func (s *ItemStore) Delete(ctx context.Context, id int) (*model.Item, error) {
	unlock := s.lock()
	defer unlock()

	item, err := s.delete(ctx, id)
	observe("delete", err)
	return item, err
}

func (s *ItemStore) delete(ctx context.Context, id int) (*model.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(items, id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	removed := items[idx]
	items = slices.Delete(items, idx, idx+1)

	if err := s.save(ctx, items); err != nil {
		return nil, err
	}

	s.logger.Debug("item deleted", zap.Int("id", id))
	return &removed, nil
}

func (s *ItemStore) lock() func() {
	if !s.serialize {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *ItemStore) load(ctx context.Context) ([]model.Item, error) {
	items, err := s.backend.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return items, nil
}

func (s *ItemStore) save(ctx context.Context, items []model.Item) error {
	if err := s.backend.WriteAll(ctx, items); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// indexOf returns the position of the first item with the given ID, or -1.
func indexOf(items []model.Item, id int) int {
	return slices.IndexFunc(items, func(item model.Item) bool {
		return item.ID == id
	})
}

func observe(operation string, err error) {
	result := resultOK
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = resultNotFound
	default:
		result = resultError
	}
	storeOperationsTotal.WithLabelValues(operation, result).Inc()
}
