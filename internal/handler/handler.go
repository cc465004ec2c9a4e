// Package handler provides HTTP request handlers for the inventory API.
package handler

import "github.com/Mubo-H/inventory-api/internal/model"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// EventPublisher receives item change events after successful mutations.
type EventPublisher interface {
	Publish(event model.ItemEvent)
}

// Error messages returned in {"error": ...} bodies.
const (
	msgRouteNotFound = "Not Found"
	msgItemNotFound  = "Item not found"
	msgInvalidData   = "Invalid data"
	msgCreateFailed  = "Failed to create item"
	msgUpdateFailed  = "Failed to update item"
	msgLoadFailed    = "Failed to load items"
	msgSaveFailed    = "Failed to save items"
	msgInternal      = "Internal Server Error"
	msgDeleted       = "Item deleted successfully"
)
