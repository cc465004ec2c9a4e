// Package model defines data structures used throughout the application.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPatch is returned when a partial update cannot be applied to an item.
var ErrInvalidPatch = errors.New("patch does not fit item fields")

// Size is the garment size of an item.
type Size string

// Known item sizes.
const (
	SizeSmall  Size = "s"
	SizeMedium Size = "m"
	SizeLarge  Size = "l"
)

// Item represents a single inventory record.
type Item struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Size  Size    `json:"size"`
}

// ItemPatch holds the raw fields of a partial update, keyed by JSON field name.
type ItemPatch map[string]json.RawMessage

// Apply shallow-merges the patch onto a copy of the item. Every supplied field
// overwrites the stored one, id included; omitted fields are preserved.
// A field whose value does not fit the item's type yields ErrInvalidPatch.
func (i Item) Apply(patch ItemPatch) (Item, error) {
	if len(patch) == 0 {
		return i, nil
	}

	base, err := json.Marshal(i)
	if err != nil {
		return i, fmt.Errorf("encoding item: %w", err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return i, fmt.Errorf("decoding item fields: %w", err)
	}

	for name, value := range patch {
		fields[name] = value
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return i, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	var out Item
	if err := json.Unmarshal(merged, &out); err != nil {
		return i, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	return out, nil
}

// ItemsResponse is the body of GET /api/items.
type ItemsResponse struct {
	Items []Item `json:"items"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item Item `json:"item"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ItemEvent is broadcast to change feed subscribers after a successful mutation.
type ItemEvent struct {
	Type      string    `json:"type"`
	Item      Item      `json:"item"`
	Timestamp time.Time `json:"timestamp"`
}

// Item event types.
const (
	EventItemCreated = "item_created"
	EventItemUpdated = "item_updated"
	EventItemDeleted = "item_deleted"
)

// NewItemEvent creates a change event stamped with the current time.
func NewItemEvent(eventType string, item Item) ItemEvent {
	return ItemEvent{
		Type:      eventType,
		Item:      item,
		Timestamp: time.Now().UTC(),
	}
}
