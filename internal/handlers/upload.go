package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/metadata"
	"github.com/filedepot/filedepot/internal/metrics"
	"github.com/filedepot/filedepot/internal/storage"
	"github.com/filedepot/filedepot/internal/store"
)

// maxFormMemory bounds how much of a multipart form is held in memory before
// spilling to disk.
const maxFormMemory = 32 << 20

// UploadHandler serves the upload endpoints.
type UploadHandler struct {
	store   *store.Store
	records metadata.RecordStore
}

// NewUploadHandler creates an UploadHandler. records may be nil, in which
// case completed uploads are simply not recorded.
func NewUploadHandler(st *store.Store, records metadata.RecordStore) *UploadHandler {
	return &UploadHandler{store: st, records: records}
}

// uploadResponse is the JSON body returned by both save paths.
type uploadResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
}

// Upload handles POST /upload: a single-shot multipart-form upload with
// fields "file" (required) and "module" (optional).
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, deperr.InvalidInput("request is not a valid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, deperr.InvalidInput("form field \"file\" is required"))
		return
	}
	defer file.Close()

	module := r.FormValue("module")
	if module == "" {
		module = store.DefaultModule
	}
	contentType := header.Header.Get("Content-Type")

	obj, err := h.store.SaveStream(r.Context(), file, header.Size, header.Filename, module, contentType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("single", "error").Inc()
		writeError(w, err)
		return
	}
	metrics.UploadsTotal.WithLabelValues("single", "success").Inc()
	metrics.UploadBytes.Observe(float64(obj.Size))

	h.record(r.Context(), header.Filename, contentType, module, obj)

	writeJSON(w, http.StatusOK, uploadResponse{
		URL:         obj.URL,
		Key:         obj.Key,
		Size:        obj.Size,
		Filename:    header.Filename,
		ContentType: contentType,
	})
}

// UploadChunk handles PUT /upload/{uploadID}/parts/{partNumber}: stores one
// raw-body part of a chunked upload.
func (h *UploadHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	partNumber, err := strconv.Atoi(chi.URLParam(r, "partNumber"))
	if err != nil {
		writeError(w, deperr.InvalidInput("part number must be an integer"))
		return
	}

	written, err := h.store.SaveChunk(uploadID, partNumber, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ChunkPartsTotal.Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id":   uploadID,
		"part_number": partNumber,
		"size":        written,
	})
}

// ListParts handles GET /upload/{uploadID}/parts: returns the sorted part
// numbers already stored, so a client can resume without resending them.
func (h *UploadHandler) ListParts(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	parts, err := h.store.ListUploadedParts(uploadID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id": uploadID,
		"parts":     parts,
	})
}

// completeRequest is the JSON body of the complete-upload endpoint.
type completeRequest struct {
	Filename   string `json:"filename"`
	TotalParts int    `json:"total_parts"`
	Module     string `json:"module"`
}

// CompleteUpload handles POST /upload/{uploadID}/complete: merges all parts
// into one stored object. Safe to retry after a failed attempt.
func (h *UploadHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, deperr.InvalidInput("request body is not valid JSON"))
		return
	}
	if req.Module == "" {
		req.Module = store.DefaultModule
	}

	obj, err := h.store.CompleteUpload(r.Context(), uploadID, req.Filename, req.TotalParts, req.Module)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("chunked", "error").Inc()
		writeError(w, err)
		return
	}
	metrics.UploadsTotal.WithLabelValues("chunked", "success").Inc()
	metrics.UploadBytes.Observe(float64(obj.Size))

	h.record(r.Context(), req.Filename, store.ContentTypeForKey(obj.Key), req.Module, obj)

	writeJSON(w, http.StatusOK, uploadResponse{
		URL:      obj.URL,
		Key:      obj.Key,
		Size:     obj.Size,
		Filename: req.Filename,
	})
}

// record persists an upload record. Best-effort: the object is already
// committed, so a bookkeeping failure is logged, never surfaced.
func (h *UploadHandler) record(ctx context.Context, filename, contentType, module string, obj *storage.StoredObject) {
	if h.records == nil {
		return
	}
	rec := &metadata.UploadRecord{
		Filename:    filename,
		Key:         obj.Key,
		URL:         obj.URL,
		Size:        obj.Size,
		ContentType: contentType,
		Module:      module,
	}
	if err := h.records.Insert(ctx, rec); err != nil {
		slog.Error("recording upload failed", "key", obj.Key, "error", err)
	}
}
