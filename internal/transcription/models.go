package transcription

import "time"

// Segment is one timed span of recognized speech, in seconds
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the final transcript of one recording. Build it with BuildResult
// so FullText always matches Segments.
type Result struct {
	Segments []Segment `json:"segments"`
	FullText string    `json:"full_text"`
}

// Window is one planned slice of the recording, in milliseconds
type Window struct {
	Index   int   `json:"index"`
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
	Skip    bool  `json:"skip"` // too short to transcribe
}

// DurationMs returns the window length
func (w Window) DurationMs() int64 {
	return w.EndMs - w.StartMs
}

// WindowTranscript is the remote result for one window. Segment times are
// relative to the start of the window.
type WindowTranscript struct {
	Index       int
	Segments    []Segment
	StartOffset float64 // window start in the recording, seconds
	Duration    float64 // audio length reported by the service, seconds
	Untimed     bool    // Segments hold one synthetic segment at 0 built from plain text
}

// RawTranscript is a normalized response from the speech-to-text service
type RawTranscript struct {
	Text     string
	Language string
	Duration float64 // 0 when the service did not report it
	Segments []Segment
	Untimed  bool // the service sent text without segments
}

// Options controls how the pipeline splits and transcribes recordings
type Options struct {
	SingleFileLimitBytes int64         // files up to this size are sent in one request
	MaxWindowBytes       int64         // exported windows above this size are rejected
	WindowMs             int64         // nominal window length
	OverlapMs            int64         // overlap appended to every window
	MinWindowMs          int64         // shorter windows are skipped
	ParallelWindows      int           // concurrent window workers
	RealTimeFactor       float64       // estimated processing seconds per audio second
	TempDir              string        // parent of the per-run scratch directory
	SimulatorMinInterval time.Duration // lower bound between synthetic progress ticks
	SimulatorMaxInterval time.Duration // upper bound between synthetic progress ticks
}

// DefaultOptions returns the standard windowing parameters
func DefaultOptions() Options {
	return Options{
		SingleFileLimitBytes: 25 * 1024 * 1024,
		MaxWindowBytes:       25 * 1024 * 1024,
		WindowMs:             2 * 60 * 1000,
		OverlapMs:            15 * 1000,
		MinWindowMs:          DefaultMinWindowMs,
		ParallelWindows:      1,
		RealTimeFactor:       0.07,
		SimulatorMinInterval: time.Second,
		SimulatorMaxInterval: 5 * time.Second,
	}
}
