package transcription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/interview-scribe/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.WindowMs = 60000
	cfg.Transcription.OverlapMs = 5000
	cfg.Transcription.ParallelWindows = 4
	cfg.Transcription.TempDir = "/scratch"
	require.NoError(t, cfg.Validate())

	opts := OptionsFromConfig(cfg.Transcription)
	assert.Equal(t, int64(25*1024*1024), opts.SingleFileLimitBytes)
	assert.Equal(t, int64(60000), opts.WindowMs)
	assert.Equal(t, int64(5000), opts.OverlapMs)
	assert.Equal(t, int64(100), opts.MinWindowMs)
	assert.Equal(t, 4, opts.ParallelWindows)
	assert.Equal(t, "/scratch", opts.TempDir)
	assert.Equal(t, DefaultOptions().MaxWindowBytes, opts.MaxWindowBytes)
}

func TestOptionsFromConfigWithoutOverlap(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.DisableOverlap = true
	require.NoError(t, cfg.Validate())

	opts := OptionsFromConfig(cfg.Transcription)
	assert.Zero(t, opts.OverlapMs)

	windows, err := WindowPlan{WindowMs: opts.WindowMs, OverlapMs: opts.OverlapMs, MinWindowMs: opts.MinWindowMs}.Plan(300000)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, windows[0].EndMs, windows[1].StartMs)
	assert.Equal(t, int64(240000), windows[1].EndMs)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := config.Default()

	policy := RetryPolicyFromConfig(cfg.Transcription)
	assert.Equal(t, DefaultRetryPolicy(), policy)

	cfg.Transcription.RetryBackoffMs = 250
	assert.Equal(t, 250*time.Millisecond, RetryPolicyFromConfig(cfg.Transcription).Backoff)
}
