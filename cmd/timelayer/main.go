// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command timelayer runs the TimeLayer work-interval API server.
//
// TimeLayer records discrete work intervals and keeps the persisted
// timeline non-overlapping: a new submission always wins over anything
// already stored in its range, and the consistency engine rewrites the
// affected intervals atomically.
//
// Usage:
//
//	timelayer serve
//	timelayer serve --port 9090 --config ./timelayer.yaml
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/timeline/health
//
//	# Record an interval
//	curl -X POST http://localhost:8080/v1/timeline/entries \
//	  -H "Content-Type: application/json" \
//	  -d '{"start_time": "2025-06-02T09:00:00Z", "end_time": "2025-06-02T10:30:00Z", "project": "timelayer", "task_type": "dev"}'
//
//	# List a day
//	curl 'http://localhost:8080/v1/timeline/entries?date=2025-06-02'
//
//	# Clone yesterday onto today
//	curl -X POST http://localhost:8080/v1/timeline/entries/clone-day
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/timelayer/pkg/logging"
	"github.com/AleutianAI/timelayer/services/timeline"
	"github.com/AleutianAI/timelayer/services/timeline/config"
	"github.com/AleutianAI/timelayer/services/timeline/storage/badger"
	"github.com/AleutianAI/timelayer/services/timeline/store"
	"github.com/AleutianAI/timelayer/services/timeline/telemetry"
)

var (
	configPath string
	portFlag   int

	rootCmd = &cobra.Command{
		Use:   "timelayer",
		Short: "TimeLayer keeps a work-interval timeline consistent",
		Long: `TimeLayer records work intervals and guarantees the persisted
timeline is always non-overlapping: later submissions win, and the
engine rewrites conflicting intervals atomically.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the TimeLayer API server",
		RunE:  runServe,
	}

	cloneSource string
	cloneTarget string

	cloneDayCmd = &cobra.Command{
		Use:   "clone-day",
		Short: "Copy one day's intervals onto another day",
		Long: `Opens the configured database directly and re-submits every interval
of the source day onto the target day, resolving overlaps the same way
the API does. The server must not be running against the same database.

Dates are YYYY-MM-DD; source defaults to yesterday, target to today.`,
		RunE: runCloneDay,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(timeline.ServiceVersion)
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	cloneDayCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cloneDayCmd.Flags().StringVar(&cloneSource, "source", "", "Source day (YYYY-MM-DD, default yesterday)")
	cloneDayCmd.Flags().StringVar(&cloneTarget, "target", "", "Target day (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cloneDayCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "timelayer",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()

	shutdownTracing, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    "timelayer",
		ServiceVersion: timeline.ServiceVersion,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		OTLPInsecure:   cfg.Tracing.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Trace exporter shutdown failed", "error", err)
		}
	}()

	// Set Gin mode
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := badger.Open(badger.Config{
		Path:           cfg.Storage.Path,
		InMemory:       cfg.Storage.InMemory,
		SyncWrites:     cfg.Storage.SyncWrites,
		GCInterval:     cfg.Storage.GCInterval,
		GCDiscardRatio: 0.5,
		Logger:         logger.Slog(),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st := store.New(db, logger.Slog())
	svc := timeline.NewService(st, timeline.ServiceConfig{
		MaxConflictRetries: cfg.MaxConflictRetries,
		Logger:             logger.Slog(),
	})
	handlers := timeline.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	timeline.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Graceful shutdown: stop accepting requests, then let the deferred
	// db.Close flush the store.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting TimeLayer server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
		logger.Info("Shutting down TimeLayer server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runCloneDay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sourceDay := now.AddDate(0, 0, -1)
	targetDay := now
	if cloneSource != "" {
		if sourceDay, err = time.ParseInLocation("2006-01-02", cloneSource, time.UTC); err != nil {
			return fmt.Errorf("invalid source day %q: want YYYY-MM-DD", cloneSource)
		}
	}
	if cloneTarget != "" {
		if targetDay, err = time.ParseInLocation("2006-01-02", cloneTarget, time.UTC); err != nil {
			return fmt.Errorf("invalid target day %q: want YYYY-MM-DD", cloneTarget)
		}
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Service: "timelayer",
		Quiet:   true,
	})
	defer logger.Close()

	// One-shot tool; skip the GC runner.
	db, err := badger.Open(badger.Config{
		Path:       cfg.Storage.Path,
		InMemory:   cfg.Storage.InMemory,
		SyncWrites: cfg.Storage.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc := timeline.NewService(store.New(db, logger.Slog()), timeline.ServiceConfig{
		MaxConflictRetries: cfg.MaxConflictRetries,
		Logger:             logger.Slog(),
	})

	created, err := svc.CloneDay(cmd.Context(), sourceDay, targetDay)
	if err != nil {
		return err
	}

	fmt.Printf("Cloned %d interval(s) from %s to %s\n",
		len(created), sourceDay.Format("2006-01-02"), targetDay.Format("2006-01-02"))
	return nil
}
