package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facewatch/internal/logging"
)

// Watcher records watch subscriptions.
type Watcher interface {
	Watch(ctx context.Context, watcher, target string) (int64, error)
}

// WatchHandler handles watch subscriptions.
type WatchHandler struct {
	registry Watcher
	logger   *slog.Logger
}

// NewWatchHandler creates a watch handler.
func NewWatchHandler(registry Watcher, logger *slog.Logger) *WatchHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WatchHandler{registry: registry, logger: logger}
}

// WatchRequest is the watch payload.
type WatchRequest struct {
	WatcherEmail string `json:"watcher_email"`
	Target       string `json:"target"`
}

// WatchResponse confirms a watch.
type WatchResponse struct {
	Status    string `json:"status"`
	SubjectID int64  `json:"subject_id"`
}

// Create handles POST /api/v1/watch. Repeating a watch is a no-op.
func (h *WatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req WatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	id, err := h.registry.Watch(r.Context(), req.WatcherEmail, req.Target)
	if err != nil {
		respondServiceError(w, h.logger, "watch", err)
		return
	}

	respondJSON(w, http.StatusOK, WatchResponse{Status: "success", SubjectID: id})
}
