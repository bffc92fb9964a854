package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidateFillsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GROQ_API_KEY", "gsk-env")

	c := &Config{}
	require.NoError(t, c.Validate())

	assert.Equal(t, 8000, c.Server.Port)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "console", c.Logging.Format)

	tr := c.Transcription
	assert.Equal(t, "sk-env", tr.OpenAIAPIKey)
	assert.Equal(t, "whisper-1", tr.Model)
	assert.Equal(t, 120, tr.TimeoutSeconds)
	assert.Equal(t, 3, tr.RetryMaxAttempts)
	assert.Equal(t, 5000, tr.RetryBackoffMs)
	assert.Equal(t, int64(120000), tr.WindowMs)
	assert.Equal(t, int64(15000), tr.OverlapMs)
	assert.Equal(t, int64(100), tr.MinWindowMs)
	assert.Equal(t, int64(25*1024*1024), tr.SingleFileLimitBytes())
	assert.Equal(t, 1, tr.ParallelWindows)
	assert.InDelta(t, 0.07, tr.RealTimeFactor, 1e-9)

	assert.Equal(t, "openai", c.Analysis.Provider)
	assert.Equal(t, "gsk-env", c.Analysis.APIKey)
	assert.Equal(t, 300, c.Analysis.TimeoutSeconds)
	assert.Equal(t, int64(1024*1024*1024), c.Upload.MaxSizeBytes())
	assert.Contains(t, c.Upload.AllowedTypes, "audio/wav")
	assert.Equal(t, ":memory:", c.Storage.JobsDSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"overlap not below window", func(c *Config) {
			c.Transcription.WindowMs = 1000
			c.Transcription.OverlapMs = 1000
		}},
		{"negative window", func(c *Config) { c.Transcription.WindowMs = -1 }},
		{"provider", func(c *Config) { c.Analysis.Provider = "bard" }},
		{"temperature", func(c *Config) { c.Analysis.Temperature = 3 }},
		{"static dir", func(c *Config) { c.Server.StaticFilesDir = "/does/not/exist/anywhere" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{}
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGeminiDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	c := &Config{Analysis: AnalysisConfig{Provider: "gemini"}}
	require.NoError(t, c.Validate())
	assert.Equal(t, "g-key", c.Analysis.APIKey)
	assert.NotEmpty(t, c.Analysis.Model)
}

func TestLoadDecodesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9001

[transcription]
window_ms = 60000
overlap_ms = 5000
parallel_windows = 4
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 9001, c.Server.Port)
	assert.Equal(t, int64(60000), c.Transcription.WindowMs)
	assert.Equal(t, int64(5000), c.Transcription.OverlapMs)
	assert.Equal(t, 4, c.Transcription.ParallelWindows)
}

func TestLoadDisableOverlap(t *testing.T) {
	path := writeConfig(t, `
[transcription]
overlap_ms = 5000
disable_overlap = true
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Zero(t, c.Transcription.OverlapMs)

	// a second pass keeps it disabled
	require.NoError(t, c.Validate())
	assert.Zero(t, c.Transcription.OverlapMs)
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 7000\n")
	c, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Server.Port)
}

func TestLoadWithFallbackMissing(t *testing.T) {
	_, err := LoadWithFallback(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 8000, c.Server.Port)
	assert.Equal(t, "whisper-1", c.Transcription.Model)
}
