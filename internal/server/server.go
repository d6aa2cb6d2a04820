// Package server wires the filedepot HTTP routes onto a Chi router with a
// Huma-documented health endpoint and a Prometheus metrics endpoint.
package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filedepot/filedepot/internal/config"
	"github.com/filedepot/filedepot/internal/handlers"
	"github.com/filedepot/filedepot/internal/metadata"
	"github.com/filedepot/filedepot/internal/store"
)

// Server is the filedepot HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	store      *store.Store
	upload     *handlers.UploadHandler
	download   *handlers.DownloadHandler
	records    *handlers.RecordsHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Backend string `json:"backend" example:"ok" doc:"Active storage backend status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a Server over the given facade and record store and registers
// all routes. records may be nil to disable upload bookkeeping.
func New(cfg *config.Config, st *store.Store, records metadata.RecordStore) *Server {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("filedepot API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:      cfg,
		router:   router,
		api:      api,
		store:    st,
		upload:   handlers.NewUploadHandler(st, records),
		download: handlers.NewDownloadHandler(st),
	}
	if records != nil {
		s.records = handlers.NewRecordsHandler(records)
	}

	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler chain for tests.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports the health of the server and its active storage backend.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		backend := "ok"
		if err := s.store.Backend().HealthCheck(ctx); err != nil {
			backend = "unavailable"
		}
		return &HealthOutput{Body: HealthBody{Status: "ok", Backend: backend}}, nil
	})

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/upload", s.upload.Upload)
	s.router.Route("/upload/{uploadID}", func(r chi.Router) {
		r.Put("/parts/{partNumber}", s.upload.UploadChunk)
		r.Get("/parts", s.upload.ListParts)
		r.Post("/complete", s.upload.CompleteUpload)
	})

	s.router.Get("/files/*", s.download.Download)

	if s.records != nil {
		s.router.Get("/uploads", s.records.List)
		s.router.Delete("/uploads/{id}", s.records.Delete)
	}
}
