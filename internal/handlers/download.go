package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/metrics"
	"github.com/filedepot/filedepot/internal/store"
)

// DownloadHandler streams stored objects back out by key.
type DownloadHandler struct {
	store *store.Store
}

// NewDownloadHandler creates a DownloadHandler over the given facade.
func NewDownloadHandler(st *store.Store) *DownloadHandler {
	return &DownloadHandler{store: st}
}

// Download handles GET /files/{key...}: proxies the object bytes to the
// client without buffering the whole file, with the content type inferred
// from the key's extension.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, deperr.InvalidInput("storage key must not be empty"))
		return
	}

	body, size, err := h.store.OpenReadStream(r.Context(), key)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", store.ContentTypeForKey(key))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; all that is left is to log the broken stream.
		slog.Warn("streaming object interrupted", "key", key, "error", err)
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.DownloadsTotal.WithLabelValues("success").Inc()
}
