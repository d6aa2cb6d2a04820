// Package metrics defines Prometheus metrics for filedepot.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for payload size histograms (bytes).
var sizeBuckets = []float64{1024, 16384, 262144, 1048576, 8388608, 67108864, 536870912}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedepot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filedepot_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Upload and retrieval metrics.
var (
	// UploadsTotal counts completed saves by mode (single, chunked) and status.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedepot_uploads_total",
			Help: "Completed upload operations by mode and status",
		},
		[]string{"mode", "status"},
	)

	// UploadBytes observes the size of committed objects.
	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filedepot_upload_bytes",
			Help:    "Size of committed objects in bytes",
			Buckets: sizeBuckets,
		},
	)

	// ChunkPartsTotal counts stored chunk parts.
	ChunkPartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filedepot_chunk_parts_total",
			Help: "Chunk parts written to session storage",
		},
	)

	// DownloadsTotal counts object read streams by status.
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedepot_downloads_total",
			Help: "Object read streams by status",
		},
		[]string{"status"},
	)

	// SessionsReaped counts abandoned sessions removed by the reaper.
	SessionsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filedepot_sessions_reaped_total",
			Help: "Abandoned upload sessions removed",
		},
	)
)

// Register registers all collectors with the default registry. Called
// explicitly from main so registration stays conditional on configuration;
// subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			UploadsTotal,
			UploadBytes,
			ChunkPartsTotal,
			DownloadsTotal,
			SessionsReaped,
		)
	})
}

// NormalizePath maps request paths to low-cardinality label templates so
// upload ids and storage keys never become metric labels.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/metrics", "/upload", "/uploads", "/", "":
		if path == "" {
			return "/"
		}
		return path
	}
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}
	if strings.HasPrefix(path, "/openapi") {
		return "/openapi"
	}
	if strings.HasPrefix(path, "/files/") {
		return "/files/{key}"
	}
	if strings.HasPrefix(path, "/uploads/") {
		return "/uploads/{id}"
	}
	if strings.HasPrefix(path, "/upload/") {
		rest := strings.TrimPrefix(path, "/upload/")
		switch {
		case strings.HasSuffix(rest, "/complete"):
			return "/upload/{upload_id}/complete"
		case strings.HasSuffix(rest, "/parts"):
			return "/upload/{upload_id}/parts"
		case strings.Contains(rest, "/parts/"):
			return "/upload/{upload_id}/parts/{part_number}"
		default:
			return "/upload/{upload_id}"
		}
	}
	return "/other"
}
