package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/interview-scribe/internal/ai"
	"github.com/yegors/interview-scribe/internal/ai/gemini"
	"github.com/yegors/interview-scribe/internal/ai/openai"
	"github.com/yegors/interview-scribe/internal/config"
	"github.com/yegors/interview-scribe/internal/templating"
	"github.com/yegors/interview-scribe/internal/transcription"
	"github.com/yegors/interview-scribe/pkg/logger"
)

type fakeProvider struct {
	messages []ai.ChatMessage
	config   ai.ChatConfig
	reply    string
	err      error
}

func (f *fakeProvider) ChatCompletion(_ context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	f.messages = messages
	f.config = config
	return f.reply, f.err
}

func sampleResult() *transcription.Result {
	r := transcription.BuildResult([]transcription.Segment{
		{Start: 0, End: 4, Text: "I started using it last spring."},
		{Start: 65, End: 70, Text: "It saved me hours every week."},
	})
	return &r
}

func TestAnalyzeWithBuiltinPrompt(t *testing.T) {
	p := &fakeProvider{reply: "### Stage 1 ..."}
	a := NewAnalyzer(p, templating.NewEngine(logger.NewNop()),
		ai.ChatConfig{Model: "llama", Temperature: 0.1}, "", logger.NewNop())

	out, err := a.Analyze(context.Background(), sampleResult(), 70)
	require.NoError(t, err)
	assert.Equal(t, "### Stage 1 ...", out)

	require.Len(t, p.messages, 1)
	assert.Equal(t, ai.RoleUser, p.messages[0].Role)
	assert.Contains(t, p.messages[0].Content, "## Role")
	assert.Contains(t, p.messages[0].Content, "(2 segments, 70 seconds)")
	assert.Contains(t, p.messages[0].Content, "【00:01:05】It saved me hours every week.")
	assert.Equal(t, "llama", p.config.Model)
}

func TestBuildPromptWithoutDuration(t *testing.T) {
	a := NewAnalyzer(&fakeProvider{}, templating.NewEngine(logger.NewNop()), ai.ChatConfig{}, "", logger.NewNop())

	prompt, err := a.BuildPrompt(sampleResult(), 0)
	require.NoError(t, err)
	assert.Contains(t, prompt, "(2 segments)")
}

func TestAnalyzeWithCustomPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Summarize:\n{{ .Transcript }}"), 0o644))

	p := &fakeProvider{reply: "summary"}
	a := NewAnalyzer(p, templating.NewEngine(logger.NewNop()), ai.ChatConfig{}, path, logger.NewNop())

	_, err := a.Analyze(context.Background(), sampleResult(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Summarize:\n"+sampleResult().FullText, p.messages[0].Content)
}

func TestAnalyzeErrors(t *testing.T) {
	boom := errors.New("rate limited")
	a := NewAnalyzer(&fakeProvider{err: boom}, templating.NewEngine(logger.NewNop()), ai.ChatConfig{}, "", logger.NewNop())

	_, err := a.Analyze(context.Background(), sampleResult(), 0)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "analysis failed")

	_, err = a.Analyze(context.Background(), nil, 0)
	assert.Error(t, err)

	missing := NewAnalyzer(&fakeProvider{}, templating.NewEngine(logger.NewNop()), ai.ChatConfig{},
		filepath.Join(t.TempDir(), "nope.tmpl"), logger.NewNop())
	_, err = missing.Analyze(context.Background(), sampleResult(), 0)
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, config.AnalysisConfig{Provider: "openai"}, logger.NewNop())
	assert.ErrorIs(t, err, ErrNotConfigured)

	p, err := NewProvider(ctx, config.AnalysisConfig{Provider: "openai", APIKey: "k"}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, p)

	p, err = NewProvider(ctx, config.AnalysisConfig{Provider: "gemini", APIKey: "k"}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, p)

	_, err = NewProvider(ctx, config.AnalysisConfig{Provider: "other", APIKey: "k"}, logger.NewNop())
	assert.Error(t, err)
}

func TestChatConfigFrom(t *testing.T) {
	got := ChatConfigFrom(config.AnalysisConfig{Model: "m", Temperature: 0.3, MaxTokens: 100})
	assert.Equal(t, ai.ChatConfig{Model: "m", Temperature: 0.3, MaxTokens: 100}, got)
}
