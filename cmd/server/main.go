package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/seqflow/internal/config"
	"github.com/me/seqflow/internal/driver"
	"github.com/me/seqflow/internal/galaxy"
	"github.com/me/seqflow/internal/logging"
	"github.com/me/seqflow/internal/mirror"
	"github.com/me/seqflow/internal/pipeline"
	"github.com/me/seqflow/internal/registry"
	"github.com/me/seqflow/internal/server"
	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/model"
)

func main() {
	configFile := flag.String("config", "", "Path to server config file (YAML)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	workflowDir := flag.String("workflows", "", "Workflow descriptor directory (overrides config)")
	debug := flag.Bool("debug", false, "Shorthand for log_level: debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *workflowDir != "" {
		cfg.WorkflowDir = *workflowDir
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	// Load the workflow catalog.
	reg, err := registry.Load(cfg.WorkflowDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load workflows: %v\n", err)
		os.Exit(1)
	}

	// Set up the file mirror with one fetcher per locator scheme.
	mir := mirror.New(cfg.CacheDir, logger)
	httpFetcher := mirror.NewHTTPFetcher()
	mir.RegisterFetcher("https", httpFetcher)
	mir.RegisterFetcher("http", httpFetcher)
	mir.RegisterFetcher("file", mirror.NewFileFetcher())
	if cfg.S3 != nil {
		s3Fetcher, err := mirror.NewS3Fetcher(*cfg.S3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "s3 fetcher: %v\n", err)
			os.Exit(1)
		}
		mir.RegisterFetcher("s3", s3Fetcher)
		logger.Info("s3 locators enabled", "endpoint", cfg.S3.Endpoint)
	}

	// Execution backend client and per-user credentials.
	backend := galaxy.NewClient(cfg.Backend.GalaxyConfig(), logger)
	creds := pipeline.StaticCredentials{}
	for username, c := range cfg.Credentials {
		creds[username] = model.Credential{Username: username, APIKey: c.APIKey}
	}
	logger.Info("execution backend configured", "base_url", cfg.Backend.BaseURL, "users", len(creds))

	// Pipeline and its polling driver.
	pipe := pipeline.New(st, st, mir, reg, backend, creds, logger)
	drv := driver.NewLoop(st, pipe, driver.Config{PollInterval: cfg.PollInterval.Std()}, logger)

	srv := server.New(cfg, st, st, reg, logger, server.WithDriver(drv))

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the driver in background.
	srv.StartDriver(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
