package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/reviewflow/internal/attribution"
	"github.com/foxzi/reviewflow/internal/dispatch"
	"github.com/foxzi/reviewflow/internal/models"
	"github.com/foxzi/reviewflow/internal/normalizer"
	"github.com/foxzi/reviewflow/internal/upload"
)

// Version is reported by the health endpoint
var Version = "dev"

// multipart overhead allowed on top of the upload size limit
const formOverhead = 1 << 20

// ListResponse wraps paginated listings
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// DeleteResponse is the response for bulk deletes
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// MatchRequest is the request body for POST /reviews/match
type MatchRequest struct {
	UserID     string               `json:"user_id"`
	LocationID string               `json:"location_id"`
	Reviews    []attribution.Review `json:"reviews"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleUpload handles POST /api/v1/uploads
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	meta := upload.Meta{
		UserID:       r.FormValue("user_id"),
		LocationID:   r.FormValue("location_id"),
		LocationName: r.FormValue("location_name"),
		BusinessName: r.FormValue("business_name"),
	}
	if meta.UserID == "" || meta.LocationID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id and location_id are required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	result, err := s.svc.Uploads.Upload(r.Context(), upload.File{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	}, meta)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrFileTooLarge):
			s.sendError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, normalizer.ErrUnsupportedFileType),
			errors.Is(err, normalizer.ErrEmptyFile),
			errors.Is(err, normalizer.ErrMissingHeader),
			errors.Is(err, upload.ErrNoValidRows):
			s.sendError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("upload failed", "error", err, "file", header.Filename)
			s.sendError(w, http.StatusInternalServerError, "Failed to process upload")
		}
		return
	}

	s.sendJSON(w, http.StatusCreated, result)
}

// handleListBatches handles GET /api/v1/batches. location_id is optional.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BatchFilter{
		UserID:     q.Get("user_id"),
		LocationID: q.Get("location_id"),
		Limit:      intParam(q.Get("limit"), 50),
		Offset:     intParam(q.Get("offset"), 0),
	}
	if filter.UserID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	batches, total, err := s.svc.Store.Batches.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list batches", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}
	if batches == nil {
		batches = []models.UploadBatch{}
	}

	s.sendJSON(w, http.StatusOK, ListResponse[models.UploadBatch]{Items: batches, Total: total})
}

// handleDeleteBatch handles DELETE /api/v1/batches/{id}
func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.svc.Store.Batches.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to delete batch", "error", err, "id", id)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete batch")
		return
	}
	if !deleted {
		s.sendError(w, http.StatusNotFound, "Batch not found")
		return
	}

	s.logger.Info("batch deleted via API", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleListCustomers handles GET /api/v1/customers
func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CustomerFilter{
		UserID:     q.Get("user_id"),
		LocationID: q.Get("location_id"),
		BatchID:    q.Get("batch_id"),
		Status:     models.EmailStatus(q.Get("status")),
		Search:     q.Get("search"),
		Limit:      intParam(q.Get("limit"), 100),
		Offset:     intParam(q.Get("offset"), 0),
	}
	if filter.UserID == "" || filter.LocationID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id and location_id are required")
		return
	}
	if raw := q.Get("reviewed"); raw != "" {
		reviewed, err := strconv.ParseBool(raw)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "reviewed must be true or false")
			return
		}
		filter.Reviewed = &reviewed
	}

	customers, total, err := s.svc.Store.Customers.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list customers", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list customers")
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}

	s.sendJSON(w, http.StatusOK, ListResponse[models.Customer]{Items: customers, Total: total})
}

// handleDeleteCustomer handles DELETE /api/v1/customers/{id}
func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.svc.Store.DeleteCustomer(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to delete customer", "error", err, "id", id)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete customer")
		return
	}
	if !deleted {
		s.sendError(w, http.StatusNotFound, "Customer not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteLocation handles DELETE /api/v1/locations/{location}/customers
func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	n, err := s.svc.Store.DeleteLocation(r.Context(), userID, locationID)
	if err != nil {
		s.logger.Error("failed to delete location", "error", err, "location_id", locationID)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete location data")
		return
	}

	s.logger.Info("location data deleted via API", "user_id", userID, "location_id", locationID, "customers", n)
	s.sendJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// handleSend handles POST /api/v1/send. The run is synchronous and the
// response carries the per-recipient results.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.LocationID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id and location_id are required")
		return
	}
	if req.ReviewLink == "" {
		s.sendError(w, http.StatusBadRequest, "review_link is required")
		return
	}

	summary, err := s.svc.Dispatcher.SendReviewRequests(r.Context(), req, nil)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNoRecipients):
			s.sendError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, dispatch.ErrDispatchInProgress):
			s.sendError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("dispatch failed", "error", err, "location_id", req.LocationID)
			s.sendError(w, http.StatusInternalServerError, "Failed to send review requests")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, summary)
}

// handleMatchReviews handles POST /api/v1/reviews/match
func (s *Server) handleMatchReviews(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.LocationID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id and location_id are required")
		return
	}

	report, err := s.svc.Matcher.MatchReviews(r.Context(), req.UserID, req.LocationID, req.Reviews)
	if err != nil {
		s.logger.Error("review matching failed", "error", err, "location_id", req.LocationID)
		s.sendError(w, http.StatusInternalServerError, "Failed to match reviews")
		return
	}

	s.sendJSON(w, http.StatusOK, report)
}

// handleStats handles GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	locationID := r.URL.Query().Get("location_id")
	if userID == "" || locationID == "" {
		s.sendError(w, http.StatusBadRequest, "user_id and location_id are required")
		return
	}

	st, err := s.svc.Stats.ForLocation(r.Context(), userID, locationID)
	if err != nil {
		s.logger.Error("failed to compute stats", "error", err, "location_id", locationID)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	s.sendJSON(w, http.StatusOK, st)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func intParam(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
