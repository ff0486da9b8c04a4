package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facewatch/internal/blobstore"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/extract"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/matching"
)

// Submitter runs a submission through the matching engine.
type Submitter interface {
	Validate(sub matching.Submission) error
	Submit(ctx context.Context, sub matching.Submission) (*matching.Result, error)
}

// Extractor turns image bytes into a face descriptor.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (facematch.Descriptor, error)
}

// SubmissionsHandler handles sighting submissions.
type SubmissionsHandler struct {
	engine    Submitter
	extractor Extractor
	blobs     blobstore.Store
	logger    *slog.Logger
}

// NewSubmissionsHandler creates a submissions handler. extractor and blobs may be
// nil, in which case image uploads are rejected.
func NewSubmissionsHandler(engine Submitter, extractor Extractor, blobs blobstore.Store, logger *slog.Logger) *SubmissionsHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SubmissionsHandler{engine: engine, extractor: extractor, blobs: blobs, logger: logger}
}

// SubmissionRequest is the JSON ingest payload.
type SubmissionRequest struct {
	Descriptor     []float32 `json:"descriptor"`
	Name           string    `json:"name,omitempty"`
	City           string    `json:"city,omitempty"`
	DateContext    string    `json:"date_context,omitempty"`
	StartDate      string    `json:"start_date,omitempty"`
	EndDate        string    `json:"end_date,omitempty"`
	ReviewText     string    `json:"review_text,omitempty"`
	ImageRef       string    `json:"image_ref,omitempty"`
	SubmitterEmail string    `json:"submitter_email,omitempty"`
}

func (req SubmissionRequest) submission() matching.Submission {
	return matching.Submission{
		Descriptor:  facematch.Descriptor(req.Descriptor),
		Name:        req.Name,
		City:        req.City,
		DateContext: req.DateContext,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Note:        req.ReviewText,
		ImageRef:    req.ImageRef,
		Submitter:   req.SubmitterEmail,
	}
}

// Create handles POST /api/v1/submissions
func (h *SubmissionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Descriptor) > constants.MaxDescriptorLength {
		respondError(w, http.StatusBadRequest, "descriptor too long")
		return
	}

	h.submit(w, r, req.submission())
}

// CreateFromImage handles POST /api/v1/submissions/image. The multipart form
// carries the image in the "image" field and the submission metadata as plain
// fields named like the JSON payload.
func (h *SubmissionsHandler) CreateFromImage(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil || h.blobs == nil {
		respondError(w, http.StatusNotImplemented, "image submissions are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing image")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	data := buf.Bytes()

	descriptor, err := h.extractor.Extract(r.Context(), data)
	if errors.Is(err, extract.ErrNoFaceDetected) {
		respondJSON(w, http.StatusOK, SubmissionResponse{Status: matching.StatusNoFace, Observations: []ObservationResponse{}})
		return
	}
	if err != nil {
		h.logger.Error("descriptor extraction failed", "error", err)
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: "descriptor extraction failed", Retryable: true})
		return
	}

	req := SubmissionRequest{
		Descriptor:     descriptor,
		Name:           r.FormValue("name"),
		City:           r.FormValue("city"),
		DateContext:    r.FormValue("date_context"),
		StartDate:      r.FormValue("start_date"),
		EndDate:        r.FormValue("end_date"),
		ReviewText:     r.FormValue("review_text"),
		SubmitterEmail: r.FormValue("submitter_email"),
	}
	sub := req.submission()
	if err := h.engine.Validate(sub); err != nil {
		respondServiceError(w, h.logger, "submission", err)
		return
	}

	contentType := http.DetectContentType(data)
	ref, err := h.blobs.Put(r.Context(), blobstore.NewKey(contentType), contentType, data)
	if err != nil {
		h.logger.Error("storing image failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "failed to store image", Retryable: true})
		return
	}
	sub.ImageRef = ref

	if !h.submit(w, r, sub) {
		h.logger.Warn("stored image has no observation", "image_ref", ref)
	}
}

// submit writes the engine's answer and reports whether the submission succeeded.
func (h *SubmissionsHandler) submit(w http.ResponseWriter, r *http.Request, sub matching.Submission) bool {
	res, err := h.engine.Submit(r.Context(), sub)
	if err != nil {
		respondServiceError(w, h.logger, "submission", err)
		return false
	}

	h.logger.Info("submission processed",
		"status", res.Status,
		"subject_id", res.SubjectID,
		"city", sanitizeForLog(sub.City),
	)
	respondJSON(w, http.StatusOK, NewSubmissionResponse(res))
	return true
}
