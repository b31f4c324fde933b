// Package http exposes the document extraction API over REST.
package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"docextract/internal/common"
	"docextract/internal/config"
	"docextract/internal/dispatch"
	"docextract/internal/health"
	"docextract/internal/validation"
)

type Handlers struct {
	Dispatcher *dispatch.Dispatcher
	Health     *health.Aggregator
	Config     config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	if h.Config.SubmitRateLimit > 0 {
		r.With(httprate.LimitByIP(h.Config.SubmitRateLimit, time.Minute)).
			Post("/v1/documents", h.submitDocument)
	} else {
		r.Post("/v1/documents", h.submitDocument)
	}
	r.Get("/v1/documents/{id}/status", h.getStatus)
	r.Get("/v1/documents/{id}/result", h.getResult)

	// for static file serving for local storage
	if h.Config.StorageMode == "local" || h.Config.StorageMode == "filesystem" {
		r.Get("/files/*", h.serveFiles)
	}
}

// submitDocument accepts a multipart upload keyed by a client-chosen
// document_id and schedules it for asynchronous extraction. Resubmitting an
// id is not an error: the response carries the job's current status.
func (h *Handlers) submitDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.Config.MaxUploadSize); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	id := r.FormValue("document_id")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, validation.ValidationErrors{{Field: "file", Message: "is required"}})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, h.Config.MaxUploadSize+1))
	if err != nil {
		slog.Error("failed to read upload", "id", id, "error", err)
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	if errs := validation.ValidateSubmission(id, header.Filename, payload, h.Config.MaxUploadSize); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	out, err := h.Dispatcher.Submit(r.Context(), id, payload, header.Filename)
	if err != nil {
		h.writeError(w, id, err)
		return
	}

	status := "ok"
	if out.Duplicate {
		status = string(out.Status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (h *Handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.Dispatcher.GetStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (h *Handlers) getResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.Dispatcher.GetResult(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/files/")
	if filePath == "" {
		http.Error(w, "file path required", http.StatusBadRequest)
		return
	}

	if strings.Contains(filePath, "..") {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.Config.LocalStorageDir, filePath)
	http.ServeFile(w, r, fullPath)
}

// writeError maps domain errors onto status codes. Queue saturation is the
// only retryable rejection and says so explicitly.
func (h *Handlers) writeError(w http.ResponseWriter, id string, err error) {
	switch {
	case common.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case common.IsQueueFull(err):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":     "processing queue is full",
			"retryable": true,
		})
	case common.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "document not found"})
	default:
		slog.Error("request failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeValidation(w http.ResponseWriter, errs validation.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "validation failed",
		"details": errs,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
