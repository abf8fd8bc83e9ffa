package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/beatok/backend/pkg/beatok"
	"github.com/beatok/backend/pkg/logger"
	"github.com/beatok/backend/pkg/models"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service beatok.Service
	config  *ServerConfig
	log     beatok.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	StorageType    string
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewServer creates a new server instance
func NewServer(service beatok.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondServiceError maps service errors to HTTP statuses. Anything
// unrecognised is a 500 and its details stay in the log.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, action string) {
	var dup *beatok.DuplicateError
	switch {
	case errors.As(err, &dup):
		s.respondJSON(w, http.StatusConflict, newDuplicateResponse(dup))
	case errors.Is(err, beatok.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, beatok.ErrBeatNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, beatok.ErrInvalidTransition):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		s.log.Errorf("Failed to %s: %v", action, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "Beatok API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"metrics":     "GET /api/health/metrics",
			"beats":       "GET /api/beats",
			"createBeat":  "POST /api/beats",
			"getBeat":     "GET /api/beats/{id}",
			"deleteBeat":  "DELETE /api/beats/{id}",
			"approveBeat": "POST /api/beats/{id}/approve",
			"denyBeat":    "POST /api/beats/{id}/deny",
			"fingerprint": "POST /api/fingerprint",
			"compare":     "POST /api/fingerprint/compare",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to get beat counts: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:        "healthy",
		DatabasePath:  s.config.DBPath,
		StorageType:   s.config.StorageType,
		BeatCount:     stats.TotalBeats,
		ByStatus:      stats.ByStatus,
		Scheme:        stats.Scheme,
		Threshold:     stats.Threshold,
		MaxUploadSize: humanize.Bytes(uint64(s.config.MaxUploadBytes)),
	})
}

// handleListBeats handles GET /api/beats
func (s *Server) handleListBeats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := queryInt(q.Get("skip"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid skip")
		return
	}
	limit, err := queryInt(q.Get("limit"), DefaultPageSize)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	limit = min(limit, MaxPageSize)

	beats, total, err := s.service.ListBeats(r.Context(), beatok.ListOptions{
		Status:  models.Status(q.Get("status")),
		OwnerID: q.Get("owner_id"),
		Skip:    skip,
		Limit:   limit,
	})
	if err != nil {
		s.respondServiceError(w, err, "list beats")
		return
	}

	dtos := make([]BeatDTO, len(beats))
	for i := range beats {
		dtos[i] = newBeatDTO(&beats[i])
	}
	s.respondJSON(w, http.StatusOK, ListBeatsResponse{
		Beats: dtos,
		Count: len(dtos),
		Total: total,
		Skip:  skip,
		Limit: limit,
	})
}

// handleGetBeat handles GET /api/beats/{id}
func (s *Server) handleGetBeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	beat, err := s.service.GetBeat(r.Context(), id)
	if err != nil {
		if errors.Is(err, beatok.ErrBeatNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Beat with ID %s not found", id))
			return
		}
		s.respondServiceError(w, err, "retrieve beat")
		return
	}
	s.respondJSON(w, http.StatusOK, newBeatDTO(beat))
}

// handleDeleteBeat handles DELETE /api/beats/{id}
func (s *Server) handleDeleteBeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteBeat(r.Context(), id); err != nil {
		if errors.Is(err, beatok.ErrBeatNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Beat with ID %s not found", id))
			return
		}
		s.respondServiceError(w, err, "delete beat")
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteBeatResponse{
		Message: "Beat deleted successfully",
		ID:      id,
	})
}

// handleApproveBeat handles POST /api/beats/{id}/approve
func (s *Server) handleApproveBeat(w http.ResponseWriter, r *http.Request) {
	beat, err := s.service.ApproveBeat(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err, "approve beat")
		return
	}
	s.respondJSON(w, http.StatusOK, newBeatDTO(beat))
}

// handleDenyBeat handles POST /api/beats/{id}/deny
func (s *Server) handleDenyBeat(w http.ResponseWriter, r *http.Request) {
	beat, err := s.service.DenyBeat(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err, "deny beat")
		return
	}
	s.respondJSON(w, http.StatusOK, newBeatDTO(beat))
}

// handleCreateBeat handles POST /api/beats (multipart upload)
func (s *Server) handleCreateBeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %s", humanize.Bytes(uint64(tooLarge.Limit))))
			return
		}
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	tempo, err := strconv.Atoi(r.FormValue("tempo"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "tempo must be an integer")
		return
	}

	in := beatok.CreateBeatInput{
		Name:      r.FormValue("name"),
		Genre:     r.FormValue("genre"),
		Tempo:     tempo,
		Key:       r.FormValue("key"),
		OwnerID:   r.FormValue("owner_id"),
		OwnerName: r.FormValue("owner_name"),
	}
	if in.MP3, err = readUpload(r, "mp3_file"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.WAV, err = readUpload(r, "wav_file"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Infof("Uploading beat %q (%s)", in.Name, humanize.Bytes(uint64(uploadSize(in))))
	beat, err := s.service.CreateBeat(ctx, in)
	if err != nil {
		s.respondServiceError(w, err, "create beat")
		return
	}

	s.respondJSON(w, http.StatusCreated, CreateBeatResponse{
		Message: "Beat uploaded successfully",
		Beat:    newBeatDTO(beat),
	})
}

// handleFingerprint handles POST /api/fingerprint. Nothing is stored.
func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	upload, err := readUpload(r, "audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if upload == nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}

	report, err := s.service.ExtractFingerprint(ctx, upload.Data)
	if err != nil {
		s.respondServiceError(w, err, "extract fingerprint")
		return
	}
	s.respondJSON(w, http.StatusOK, FingerprintResponse{
		Filename:          upload.Filename,
		Size:              humanize.Bytes(uint64(len(upload.Data))),
		FingerprintReport: report,
	})
}

// handleCompare handles POST /api/fingerprint/compare
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.service.CompareFingerprints(req.A, req.B))
}

// readUpload reads an optional multipart file field. A missing field
// yields nil.
func readUpload(r *http.Request, field string) (*beatok.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return &beatok.Upload{Filename: header.Filename, Data: data}, nil
}

func uploadSize(in beatok.CreateBeatInput) int {
	n := 0
	for _, u := range []*beatok.Upload{in.MP3, in.WAV} {
		if u != nil {
			n += len(u.Data)
		}
	}
	return n
}

func queryInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
