// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/Mubo-H/inventory-api/internal/model"
)

// Store errors.
var (
	ErrNotFound    = errors.New("item not found")
	ErrLoad        = errors.New("failed to load items")
	ErrPersistence = errors.New("failed to save items")
)

// Store defines the interface for item storage operations.
type Store interface {
	// List returns all items in collection order.
	List(ctx context.Context) ([]model.Item, error)

	// Get retrieves an item by its ID.
	Get(ctx context.Context, id int) (*model.Item, error)

	// Create appends a new item with the next ID and returns it.
	Create(ctx context.Context, req model.CreateItemRequest) (*model.Item, error)

	// Update merges the patch onto an existing item and returns the result.
	Update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error)

	// Delete removes an item by its ID and returns the removed item.
	Delete(ctx context.Context, id int) (*model.Item, error)
}

// Backend reads and writes the whole item collection at once.
type Backend interface {
	// ReadAll returns the stored collection. A missing or syntactically
	// broken collection is reported as empty.
	ReadAll(ctx context.Context) ([]model.Item, error)

	// WriteAll replaces the stored collection.
	WriteAll(ctx context.Context, items []model.Item) error
}
