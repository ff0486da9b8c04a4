// Package handlers implements the facewatch HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/matching"
	"github.com/kozaktomas/facewatch/internal/watchlist"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
	}
	return nil
}

// respondServiceError maps domain errors onto HTTP statuses. Infrastructure
// failures are reported as retryable 503s.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var dim *facematch.ErrDimensionMismatch

	switch {
	case errors.Is(err, matching.ErrRepositoryUnavailable),
		errors.Is(err, database.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		logger.Error(op+" failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service temporarily unavailable", Retryable: true})
	case errors.Is(err, matching.ErrInvalidDate), errors.Is(err, watchlist.ErrInvalidWatcher):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &dim):
		respondError(w, http.StatusBadRequest, dim.Error())
	case errors.Is(err, watchlist.ErrUnknownTarget), errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, watchlist.ErrAmbiguousTarget):
		respondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error(op+" failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
