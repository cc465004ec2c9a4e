package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Mubo-H/inventory-api/internal/middleware"
	"github.com/Mubo-H/inventory-api/internal/model"
	"github.com/Mubo-H/inventory-api/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// Route templates for the item collection.
const (
	ItemsPath = "/api/items"
	ItemPath  = "/api/items/{id:[0-9]+}"
)

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	store  store.Store
	events EventPublisher
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance. events may be nil.
func NewRESTHandler(s store.Store, events EventPublisher, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		store:  s,
		events: events,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc(ItemsPath, h.ListItems).Methods(http.MethodGet)
	router.HandleFunc(ItemsPath, h.CreateItem).Methods(http.MethodPost)
	router.HandleFunc(ItemPath, h.GetItem).Methods(http.MethodGet)
	router.HandleFunc(ItemPath, h.UpdateItem).Methods(http.MethodPut)
	router.HandleFunc(ItemPath, h.DeleteItem).Methods(http.MethodDelete)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// NotFound answers every unmatched route, including known paths
// requested with an unsupported method.
func (h *RESTHandler) NotFound(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, http.StatusNotFound, msgRouteNotFound)
}

// ListItems handles GET /api/items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(requestContext(r))
	if err != nil {
		h.handleStoreError(w, r, err, "list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}

	h.writeJSON(w, http.StatusOK, model.ItemsResponse{Items: items})
}

// GetItem handles GET /api/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, msgItemNotFound)
		return
	}

	item, err := h.store.Get(requestContext(r), id)
	if err != nil {
		h.handleStoreError(w, r, err, "get item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.ItemResponse{Item: *item})
}

// CreateItem handles POST /api/items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.requestLogger(r).Warn("failed to read request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgCreateFailed)
		return
	}

	input, err := model.ParseCreateItem(body)
	if err != nil {
		if errors.Is(err, model.ErrInvalidItem) {
			h.requestLogger(r).Warn("validation failed", zap.Error(err))
			h.writeError(w, http.StatusBadRequest, msgInvalidData)
			return
		}
		h.requestLogger(r).Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgCreateFailed)
		return
	}

	item, err := h.store.Create(requestContext(r), input)
	if err != nil {
		h.handleStoreError(w, r, err, "create item")
		return
	}

	h.publish(model.EventItemCreated, *item)
	h.writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/items/{id} requests.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.requestLogger(r).Warn("failed to read request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgUpdateFailed)
		return
	}

	patch, err := model.ParseItemPatch(body)
	if err != nil {
		h.requestLogger(r).Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgUpdateFailed)
		return
	}

	id, ok := itemID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, msgItemNotFound)
		return
	}

	item, err := h.store.Update(requestContext(r), id, patch)
	if err != nil {
		h.handleStoreError(w, r, err, "update item")
		return
	}

	h.publish(model.EventItemUpdated, *item)
	h.writeJSON(w, http.StatusOK, model.ItemResponse{Item: *item})
}

// DeleteItem handles DELETE /api/items/{id} requests.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, msgItemNotFound)
		return
	}

	item, err := h.store.Delete(requestContext(r), id)
	if err != nil {
		h.handleStoreError(w, r, err, "delete item")
		return
	}

	h.publish(model.EventItemDeleted, *item)
	h.writeJSON(w, http.StatusOK, model.MessageResponse{Message: msgDeleted})
}

// handleStoreError maps store errors to HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	logger := h.requestLogger(r).With(zap.String("operation", operation))

	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, msgItemNotFound)
	case errors.Is(err, model.ErrInvalidPatch):
		logger.Warn("patch rejected", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, msgUpdateFailed)
	case errors.Is(err, store.ErrPersistence):
		logger.Error("failed to persist items", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgSaveFailed)
	case errors.Is(err, store.ErrLoad):
		logger.Error("failed to load items", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgLoadFailed)
	default:
		logger.Error("store operation failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// requestLogger tags log lines with the id assigned by middleware.RequestID.
func (h *RESTHandler) requestLogger(r *http.Request) *zap.Logger {
	return h.logger.With(zap.String("request_id", middleware.GetRequestID(r.Context())))
}

func (h *RESTHandler) publish(eventType string, item model.Item) {
	if h.events == nil {
		return
	}
	h.events.Publish(model.NewItemEvent(eventType, item))
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.ErrorResponse{Error: message})
}

// itemID parses the numeric id path variable. Values that overflow int
// cannot name a stored item and are reported as absent.
func itemID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, false
	}
	return id, true
}

// requestContext keeps request-scoped values but detaches cancellation:
// once started, a store operation always runs to completion.
func requestContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
