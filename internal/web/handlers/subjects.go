package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// SubjectsHandler serves read access to subjects.
type SubjectsHandler struct {
	subjects database.SubjectReader
	logger   *slog.Logger
}

// NewSubjectsHandler creates a subjects handler.
func NewSubjectsHandler(subjects database.SubjectReader, logger *slog.Logger) *SubjectsHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SubjectsHandler{subjects: subjects, logger: logger}
}

// List returns all subjects ordered by ID
func (h *SubjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.subjects.ListSubjects(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list subjects", err)
		return
	}

	out := make([]SubjectSummary, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, NewSubjectSummary(s))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one subject with its observation history
func (h *SubjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid subject id")
		return
	}

	s, err := h.subjects.GetSubject(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get subject", err)
		return
	}

	respondJSON(w, http.StatusOK, NewSubjectResponse(s))
}
