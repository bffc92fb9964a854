package analysis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/interview-scribe/internal/ai"
	"github.com/yegors/interview-scribe/internal/ai/gemini"
	"github.com/yegors/interview-scribe/internal/ai/openai"
	"github.com/yegors/interview-scribe/internal/config"
	"github.com/yegors/interview-scribe/internal/templating"
	"github.com/yegors/interview-scribe/internal/transcription"
	"github.com/yegors/interview-scribe/pkg/logger"
)

//go:embed prompts/analysis.tmpl
var defaultPrompt string

const defaultPromptName = "builtin:analysis"

// ErrNotConfigured is returned when no provider API key is available
var ErrNotConfigured = errors.New("analysis provider is not configured")

// PromptData is what the prompt template is rendered with
type PromptData struct {
	Transcript      string
	SegmentCount    int
	DurationSeconds float64
}

// Analyzer renders the analysis prompt for a transcript and sends it to a chat provider
type Analyzer struct {
	provider   ai.ChatProvider
	engine     *templating.Engine
	chat       ai.ChatConfig
	promptPath string
	logger     *logger.Logger
}

// NewAnalyzer creates an analyzer. An empty promptPath selects the built-in prompt.
func NewAnalyzer(provider ai.ChatProvider, engine *templating.Engine, chat ai.ChatConfig, promptPath string, log *logger.Logger) *Analyzer {
	return &Analyzer{
		provider:   provider,
		engine:     engine,
		chat:       chat,
		promptPath: promptPath,
		logger:     log.Named("analysis"),
	}
}

// NewProvider builds the chat provider selected by the analysis config
func NewProvider(ctx context.Context, cfg config.AnalysisConfig, log *logger.Logger) (ai.ChatProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case "gemini":
		return gemini.NewClient(ctx, cfg.APIKey, cfg.BaseURL, log)
	case "openai", "":
		return openai.NewClient(cfg.APIKey, log, cfg.BaseURL, cfg.TimeoutSeconds), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider: %s", cfg.Provider)
	}
}

// ChatConfigFrom maps the analysis config onto provider settings
func ChatConfigFrom(cfg config.AnalysisConfig) ai.ChatConfig {
	return ai.ChatConfig{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// BuildPrompt renders the prompt for a transcription result
func (a *Analyzer) BuildPrompt(result *transcription.Result, durationSeconds float64) (string, error) {
	data := PromptData{
		Transcript:      result.FullText,
		SegmentCount:    len(result.Segments),
		DurationSeconds: durationSeconds,
	}

	if a.promptPath != "" {
		return a.engine.RenderFile(a.promptPath, data)
	}
	return a.engine.RenderText(defaultPromptName, defaultPrompt, data)
}

// Analyze runs the analysis for a finished transcript
func (a *Analyzer) Analyze(ctx context.Context, result *transcription.Result, durationSeconds float64) (string, error) {
	if result == nil {
		return "", fmt.Errorf("analysis failed: %w", errors.New("no transcription result"))
	}

	start := time.Now()
	a.logger.Info("Starting analysis",
		logger.Int("characters", len(result.FullText)),
		logger.Int("segments", len(result.Segments)))

	prompt, err := a.BuildPrompt(result, durationSeconds)
	if err != nil {
		return "", fmt.Errorf("analysis failed: %w", err)
	}

	out, err := a.provider.ChatCompletion(ctx, []ai.ChatMessage{
		{Role: ai.RoleUser, Content: prompt},
	}, a.chat)
	if err != nil {
		return "", fmt.Errorf("analysis failed: %w", err)
	}

	a.logger.Info("Analysis complete",
		logger.Int("result_length", len(out)),
		logger.Duration("elapsed", time.Since(start)))

	return out, nil
}
