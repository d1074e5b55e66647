package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/store"
)

const (
	signatureHeader = "X-Signature-256"
	maxWebhookBody  = 1 << 20
)

type processPayload struct {
	ProcessingID string          `json:"processing_id,omitempty"`
	FileURL      string          `json:"file_url"`
	Filename     string          `json:"filename"`
	Metadata     *metadata.Paper `json:"metadata,omitempty"`
}

func (p processPayload) validate() string {
	switch {
	case p.FileURL == "":
		return "Missing required field: file_url"
	case p.Filename == "":
		return "Missing required field: filename"
	case !strings.HasSuffix(strings.ToLower(p.Filename), ".pdf"):
		return "Only PDF files are supported"
	}
	u, err := url.Parse(p.FileURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "Invalid file URL format"
	}
	return ""
}

// Sign returns the X-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret, header string, body []byte) bool {
	if header == "" {
		return false
	}
	return hmac.Equal([]byte(header), []byte(Sign(secret, body)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         "paperq",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"processor_ready": true,
		"running_tasks":   s.tasks.Running(),
	})
}

func (s *Server) handleProcessPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	if s.cfg.Server.WebhookSecret != "" && !validSignature(s.cfg.Server.WebhookSecret, r.Header.Get(signatureHeader), body) {
		s.log.WarnContext(ctx, "Invalid webhook signature", "remote", r.RemoteAddr)
		writeFailure(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var p processPayload
	if err := json.Unmarshal(body, &p); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if msg := p.validate(); msg != "" {
		writeFailure(w, http.StatusBadRequest, msg)
		return
	}

	req := ProcessRequest{ID: p.ProcessingID, FileURL: p.FileURL, Filename: p.Filename}
	if p.Metadata != nil {
		req.Paper = *p.Metadata
	}

	id, err := s.tasks.StartTask(ctx, req)
	switch {
	case errors.Is(err, store.ErrJobExists):
		job, _ := s.jobs.GetJob(ctx, id)
		resp := map[string]any{"success": true, "message": "Already processing", "processing_id": id}
		if job != nil {
			resp["status"] = job.Status
		}
		writeJSON(w, http.StatusOK, resp)
		return
	case errors.Is(err, ErrBusy):
		writeFailure(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.ErrorContext(ctx, "Start task failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.log.InfoContext(ctx, "Processing started", "processing_id", id, "filename", p.Filename)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":       true,
		"message":       "PDF processing started",
		"processing_id": id,
		"status":        store.JobQueued,
		"status_url":    "/status/" + id,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeFailure(w, http.StatusNotFound, "Processing ID not found")
		return
	}
	if err != nil {
		s.log.ErrorContext(r.Context(), "Get job failed", "processing_id", id, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": job})
}
