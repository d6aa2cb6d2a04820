// Package handlers implements the HTTP boundary of the upload and storage
// layer: single-shot upload, chunked upload, resumable-state query, merge,
// streamed retrieval, and upload-record management.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	deperr "github.com/filedepot/filedepot/internal/errors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON renders v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response body", "error", err)
	}
}

// writeError maps a storage-layer error onto its HTTP status and a JSON body
// carrying the taxonomy kind. Nothing is swallowed or retargeted: the error
// the facade surfaced is the error the client sees.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, deperr.HTTPStatus(err), errorBody{
		Code:    string(deperr.KindOf(err)),
		Message: err.Error(),
	})
}
