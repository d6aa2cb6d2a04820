package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/metadata"
)

// RecordsHandler serves the upload-record listing and deletion endpoints.
type RecordsHandler struct {
	records metadata.RecordStore
}

// NewRecordsHandler creates a RecordsHandler.
func NewRecordsHandler(records metadata.RecordStore) *RecordsHandler {
	return &RecordsHandler{records: records}
}

// recordResponse is the JSON shape of one upload record.
type recordResponse struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Module      string    `json:"module"`
	CreatedAt   time.Time `json:"created_at"`
}

// List handles GET /uploads?page=N&size=M: upload records newest first.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size < 1 || size > 100 {
		size = 20
	}

	recs, err := h.records.List(r.Context(), size, (page-1)*size)
	if err != nil {
		writeError(w, deperr.BackendUnavailable("listing upload records", err))
		return
	}

	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordResponse{
			ID:          rec.ID,
			Filename:    rec.Filename,
			Key:         rec.Key,
			URL:         rec.URL,
			Size:        rec.Size,
			ContentType: rec.ContentType,
			Module:      rec.Module,
			CreatedAt:   rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /uploads/{id}: soft-deletes an upload record. The
// stored object itself is untouched.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.records.SoftDelete(r.Context(), id)
	if err != nil {
		writeError(w, deperr.BackendUnavailable("deleting upload record", err))
		return
	}
	if !ok {
		writeError(w, deperr.NotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}
