package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/yegors/interview-scribe/internal/analysis"
	"github.com/yegors/interview-scribe/internal/audio"
	"github.com/yegors/interview-scribe/internal/config"
	"github.com/yegors/interview-scribe/internal/progress"
	"github.com/yegors/interview-scribe/internal/templating"
	"github.com/yegors/interview-scribe/internal/transcription"
	"github.com/yegors/interview-scribe/internal/ui"
	"github.com/yegors/interview-scribe/pkg/logger"
)

type output struct {
	SessionID     string                `json:"session_id"`
	Report        *transcription.Report `json:"report"`
	Transcription *transcription.Result `json:"transcription"`
	Analysis      string                `json:"analysis,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	sessionID := flag.String("session", "", "Session ID used for progress events (default: random)")
	analyze := flag.Bool("analyze", false, "Run the transcript through the analysis provider")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <audio file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	if err := run(*configPath, *sessionID, path, *analyze, *asJSON); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(configPath, sessionID, path string, analyze, asJSON bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read input: %w", err)
	}

	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		color.Yellow("No configuration loaded (%v), using defaults", err)
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// progress goes to the bar, so only warnings reach the log
	log, err := logger.New(logger.Config{Level: "warn", Format: "console"})
	if err != nil {
		return err
	}
	defer log.Sync()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := progress.NewBroadcaster(log)
	bar := ui.NewProgressBar(os.Stderr)
	hub.Attach(sessionID, bar)
	defer hub.Detach(sessionID, bar)

	tc := cfg.Transcription
	client := transcription.NewOpenAIClient(tc.OpenAIAPIKey, tc.Model, tc.Language, tc.TimeoutSeconds, log, tc.OpenAIBaseURL)
	pipeline := transcription.NewPipeline(
		transcription.NewTranscriber(client, transcription.RetryPolicyFromConfig(tc), log),
		audio.NewLibrary(tc.FFmpegPath, log),
		hub,
		transcription.OptionsFromConfig(tc),
		log,
	)

	hub.Publish(sessionID, progress.StageTranscription, 15, "Starting transcription...")
	result, report, err := pipeline.Run(ctx, sessionID, path)
	if err != nil {
		return err
	}

	out := output{SessionID: sessionID, Report: report, Transcription: result}

	if analyze {
		provider, err := analysis.NewProvider(ctx, cfg.Analysis, log)
		if err != nil {
			if errors.Is(err, analysis.ErrNotConfigured) {
				return fmt.Errorf("%w: set analysis.api_key or the provider's environment variable", err)
			}
			return err
		}
		analyzer := analysis.NewAnalyzer(provider, templating.NewEngine(log), analysis.ChatConfigFrom(cfg.Analysis), cfg.Analysis.PromptPath, log)

		hub.Publish(sessionID, progress.StageAnalysis, 80, "Starting AI analysis...")
		text, err := analyzer.Analyze(ctx, result, report.DurationSeconds)
		if err != nil {
			hub.Publish(sessionID, progress.StageError, 0, fmt.Sprintf("Analysis error: %v", err))
			return err
		}
		out.Analysis = text
	}
	hub.Publish(sessionID, progress.StageCompleted, 100, "Done")

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(result.FullText)
	if out.Analysis != "" {
		color.Cyan("\n================ Analysis ================\n")
		fmt.Println(out.Analysis)
	}
	color.Green("\n%d segments, %.0fs of audio, %s mode",
		len(result.Segments), report.DurationSeconds, report.Mode)
	return nil
}
