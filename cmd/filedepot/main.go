// Package main is the entry point for the filedepot upload and object
// storage server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/filedepot/filedepot/internal/chunks"
	"github.com/filedepot/filedepot/internal/config"
	"github.com/filedepot/filedepot/internal/logging"
	"github.com/filedepot/filedepot/internal/metadata"
	"github.com/filedepot/filedepot/internal/metrics"
	"github.com/filedepot/filedepot/internal/server"
	"github.com/filedepot/filedepot/internal/storage"
	"github.com/filedepot/filedepot/internal/store"
)

func main() {
	configPath := flag.String("config", "filedepot.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port")
	host := flag.String("host", "", "override listening host")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "log format: text, json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	// Storage backend selection is read once here and fixed for the process
	// lifetime. Operations never fall back to the other backend.
	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "s3":
		s3cfg := cfg.Storage.S3
		s3backend, err := storage.NewS3Backend(context.Background(), storage.S3Options{
			Endpoint:       s3cfg.Endpoint,
			Region:         s3cfg.Region,
			AccessKey:      s3cfg.AccessKey,
			SecretKey:      s3cfg.SecretKey,
			Bucket:         s3cfg.Bucket,
			PublicDomain:   s3cfg.PublicDomain,
			UsePathStyle:   s3cfg.UsePathStyle,
			RequestTimeout: time.Duration(s3cfg.RequestTimeoutSeconds) * time.Second,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize S3 backend: %v\n", err)
			os.Exit(1)
		}
		backend = s3backend
	default:
		local, err := storage.NewLocalBackend(cfg.Storage.Local.RootDir, cfg.Storage.Local.PublicPrefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize local backend: %v\n", err)
			os.Exit(1)
		}
		// Orphan temp files mean a previous run died mid-write.
		if err := local.CleanTempFiles(); err != nil {
			slog.Warn("failed to clean temp files", "error", err)
		}
		backend = local
		slog.Info("local backend initialized", "root", cfg.Storage.Local.RootDir)
	}

	sessions, err := chunks.NewSessionStore(cfg.Chunks.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize chunk session store: %v\n", err)
		os.Exit(1)
	}

	// Reap abandoned upload sessions in the background.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	reaper := &chunks.Reaper{
		Sessions: sessions,
		TTL:      time.Duration(cfg.Chunks.SessionTTLMinutes) * time.Minute,
		Interval: time.Duration(cfg.Chunks.SweepIntervalMinutes) * time.Minute,
	}
	go reaper.Run(reaperCtx)

	// Upload records are bookkeeping; a failure here is fatal only because it
	// happens at startup, where a broken database path should be loud.
	if err := os.MkdirAll(filepath.Dir(cfg.Metadata.SQLitePath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create metadata directory: %v\n", err)
		os.Exit(1)
	}
	records, err := metadata.NewSQLiteStore(cfg.Metadata.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize upload record store: %v\n", err)
		os.Exit(1)
	}
	defer records.Close()

	st := store.New(backend, sessions)
	srv := server.New(cfg, st, records)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("filedepot listening", "addr", addr, "backend", cfg.Storage.Backend)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
		stopReaper()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
