package transcription

import (
	"time"

	"github.com/yegors/interview-scribe/internal/config"
)

// OptionsFromConfig maps the [transcription] section onto pipeline options
func OptionsFromConfig(t config.TranscriptionConfig) Options {
	opts := DefaultOptions()
	opts.SingleFileLimitBytes = t.SingleFileLimitBytes()
	opts.WindowMs = t.WindowMs
	opts.OverlapMs = t.OverlapMs
	opts.MinWindowMs = t.MinWindowMs
	opts.ParallelWindows = t.ParallelWindows
	opts.RealTimeFactor = t.RealTimeFactor
	opts.TempDir = t.TempDir
	return opts
}

// RetryPolicyFromConfig maps the retry settings of the [transcription] section
func RetryPolicyFromConfig(t config.TranscriptionConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: t.RetryMaxAttempts,
		Timeout:     time.Duration(t.TimeoutSeconds) * time.Second,
		Backoff:     time.Duration(t.RetryBackoffMs) * time.Millisecond,
	}
}
