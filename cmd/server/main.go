package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/interview-scribe/internal/analysis"
	"github.com/yegors/interview-scribe/internal/api"
	"github.com/yegors/interview-scribe/internal/audio"
	"github.com/yegors/interview-scribe/internal/config"
	"github.com/yegors/interview-scribe/internal/progress"
	"github.com/yegors/interview-scribe/internal/storage/sqlite"
	"github.com/yegors/interview-scribe/internal/templating"
	"github.com/yegors/interview-scribe/internal/transcription"
	"github.com/yegors/interview-scribe/internal/upload"
	"github.com/yegors/interview-scribe/internal/websocket"
	"github.com/yegors/interview-scribe/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting interview analysis server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Job ledger
	jobs, err := sqlite.NewJobStorage(cfg.Storage.JobsDSN, log)
	if err != nil {
		log.Error("Failed to open job storage", logger.Error(err))
		os.Exit(1)
	}
	defer jobs.Close()
	log.Info("Using job storage", logger.String("dsn", cfg.Storage.JobsDSN))

	// Progress fan-out and its websocket transport
	hub := progress.NewBroadcaster(log)
	wsServer := websocket.NewServer(hub, log)

	// Transcription pipeline
	tc := cfg.Transcription
	client := transcription.NewOpenAIClient(tc.OpenAIAPIKey, tc.Model, tc.Language, tc.TimeoutSeconds, log, tc.OpenAIBaseURL)
	transcriber := transcription.NewTranscriber(client, transcription.RetryPolicyFromConfig(tc), log)
	pipeline := transcription.NewPipeline(
		transcriber,
		audio.NewLibrary(tc.FFmpegPath, log),
		hub,
		transcription.OptionsFromConfig(tc),
		log,
	)

	// Analysis is optional; without a provider /analyze returns the transcript only
	var analyzer api.Analyzer
	provider, err := analysis.NewProvider(ctx, cfg.Analysis, log)
	switch {
	case errors.Is(err, analysis.ErrNotConfigured):
		log.Warn("No analysis API key configured, analysis disabled",
			logger.String("provider", cfg.Analysis.Provider))
	case err != nil:
		log.Error("Failed to create analysis provider", logger.Error(err))
		os.Exit(1)
	default:
		analyzer = analysis.NewAnalyzer(
			provider,
			templating.NewEngine(log),
			analysis.ChatConfigFrom(cfg.Analysis),
			cfg.Analysis.PromptPath,
			log,
		)
		log.Info("Analysis enabled",
			logger.String("provider", cfg.Analysis.Provider),
			logger.String("model", cfg.Analysis.Model))
	}

	validator := upload.NewValidator(cfg.Upload.AllowedTypes, cfg.Upload.MaxSizeBytes())
	handler := api.NewHandler(pipeline, analyzer, hub, wsServer, jobs, validator, tc.TempDir, log)
	router := api.NewRouter(handler, cfg.Server.CORSAllowedOrigins, cfg.Server.StaticFilesDir, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	// Cancel in-flight pipelines so their scratch directories are removed
	cancel()

	log.Info("Server fully stopped",
		logger.Int("open_sessions", hub.SessionCount()))
}
