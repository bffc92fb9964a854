package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/interview-scribe/internal/audio"
	"github.com/yegors/interview-scribe/internal/progress"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// ProgressSink receives pipeline progress for a session
type ProgressSink interface {
	Publish(sessionID string, stage progress.Stage, pct int, message string)
}

// Mode is the path a recording took through the pipeline
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeWindowed Mode = "windowed"
)

// Report describes a finished pipeline run
type Report struct {
	Mode             Mode          `json:"mode"`
	FileSizeBytes    int64         `json:"file_size_bytes"`
	DurationSeconds  float64       `json:"duration_seconds"`
	WindowsPlanned   int           `json:"windows_planned"`
	WindowsSkipped   int           `json:"windows_skipped"`
	WindowsFailed    int           `json:"windows_failed"`
	WindowsSucceeded int           `json:"windows_succeeded"`
	DroppedOverlap   int           `json:"dropped_overlap_segments"`
	DroppedUntimed   int           `json:"dropped_untimed_segments"`
	Offsets          []float64     `json:"offsets,omitempty"`
	Elapsed          time.Duration `json:"elapsed_ns"`
}

// Pipeline turns an audio file into a Result, splitting large files into
// overlapping windows
type Pipeline struct {
	transcriber *Transcriber
	loader      audio.Loader
	progress    ProgressSink
	opts        Options
	logger      *logger.Logger
}

// NewPipeline creates a new pipeline
func NewPipeline(transcriber *Transcriber, loader audio.Loader, sink ProgressSink, opts Options, log *logger.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.SingleFileLimitBytes <= 0 {
		opts.SingleFileLimitBytes = def.SingleFileLimitBytes
	}
	if opts.MaxWindowBytes <= 0 {
		opts.MaxWindowBytes = def.MaxWindowBytes
	}
	if opts.WindowMs <= 0 {
		opts.WindowMs = def.WindowMs
	}
	if opts.MinWindowMs <= 0 {
		opts.MinWindowMs = def.MinWindowMs
	}
	if opts.ParallelWindows <= 0 {
		opts.ParallelWindows = 1
	}
	if opts.RealTimeFactor <= 0 {
		opts.RealTimeFactor = def.RealTimeFactor
	}
	if opts.SimulatorMinInterval <= 0 {
		opts.SimulatorMinInterval = def.SimulatorMinInterval
	}
	if opts.SimulatorMaxInterval < opts.SimulatorMinInterval {
		opts.SimulatorMaxInterval = opts.SimulatorMinInterval
	}

	return &Pipeline{
		transcriber: transcriber,
		loader:      loader,
		progress:    sink,
		opts:        opts,
		logger:      log.Named("pipeline"),
	}
}

// Run transcribes the file at path, publishing progress under sessionID.
// On cancellation no result is returned and all temporary files are removed.
func (p *Pipeline) Run(ctx context.Context, sessionID, path string) (*Result, *Report, error) {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, p.fail(sessionID, fmt.Errorf("failed to stat audio file: %w", err))
	}

	log := p.logger.With(logger.String("session_id", sessionID), logger.String("path", path))
	report := &Report{FileSizeBytes: info.Size()}

	var result *Result
	if info.Size() <= p.opts.SingleFileLimitBytes {
		report.Mode = ModeSingle
		log.Info("Transcribing file in a single request", logger.Int64("size_bytes", info.Size()))
		result, err = p.runSingle(ctx, sessionID, path, report, log)
	} else {
		report.Mode = ModeWindowed
		log.Info("Large file detected, transcribing in windows", logger.Int64("size_bytes", info.Size()))
		result, err = p.runWindowed(ctx, sessionID, path, report, log)
	}
	report.Elapsed = time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, report, p.fail(sessionID, ctxErr)
		}
		if errors.Is(err, ErrNoUsableWindows) {
			// the placeholder transcript is still returned
			return result, report, p.fail(sessionID, err)
		}
		return nil, report, p.fail(sessionID, err)
	}

	log.Info("Transcription finished",
		logger.String("mode", string(report.Mode)),
		logger.Int("segments", len(result.Segments)),
		logger.Duration("elapsed", report.Elapsed))

	return result, report, nil
}

func (p *Pipeline) fail(sessionID string, err error) error {
	p.progress.Publish(sessionID, progress.StageError, 0, fmt.Sprintf("Transcription error: %v", err))
	return err
}

func (p *Pipeline) runSingle(ctx context.Context, sessionID, path string, report *Report, log *logger.Logger) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	// The duration only drives the progress estimate, so a probe failure is not fatal
	var durationSec float64
	if src, err := p.loader.Load(ctx, path); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Could not determine audio duration", logger.Error(err))
	} else {
		durationSec = float64(src.DurationMs()) / 1000
		src.Close()
	}
	report.DurationSeconds = durationSec

	estimated := durationSec * p.opts.RealTimeFactor
	p.progress.Publish(sessionID, progress.StageTranscribing, 15,
		fmt.Sprintf("Starting speech recognition (estimated %.1fs)...", estimated))

	sim := startSimulator(ctx, p.progress, sessionID,
		simulatorInterval(estimated, p.opts.SimulatorMinInterval, p.opts.SimulatorMaxInterval))
	raw, err := p.transcriber.Transcribe(ctx, filepath.Base(path), data)
	sim.stop()
	if err != nil {
		return nil, err
	}

	if report.DurationSeconds == 0 {
		report.DurationSeconds = raw.Duration
	}
	result := BuildResult(raw.Segments)

	p.progress.Publish(sessionID, progress.StageTranscriptionComplete, 75, "Speech recognition complete")
	return &result, nil
}

func (p *Pipeline) runWindowed(ctx context.Context, sessionID, path string, report *Report, log *logger.Logger) (*Result, error) {
	p.progress.Publish(sessionID, progress.StageLoading, 12, "Loading audio file...")

	src, err := p.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio: %w", err)
	}
	defer src.Close()

	totalMs := src.DurationMs()
	report.DurationSeconds = float64(totalMs) / 1000
	log.Info("Audio loaded",
		logger.Int64("duration_ms", totalMs),
		logger.Int("sample_rate", src.SampleRate()),
		logger.Int("channels", src.Channels()))

	p.progress.Publish(sessionID, progress.StagePreparing, 15,
		fmt.Sprintf("Preparing to split audio (%.1f minutes)...", float64(totalMs)/60000))

	plan := WindowPlan{WindowMs: p.opts.WindowMs, OverlapMs: p.opts.OverlapMs, MinWindowMs: p.opts.MinWindowMs}
	windows, err := plan.Plan(totalMs)
	if err != nil {
		return nil, err
	}
	report.WindowsPlanned = len(windows)

	const segmentingPct = 18
	p.progress.Publish(sessionID, progress.StageSegmenting, segmentingPct,
		fmt.Sprintf("Splitting audio into %d segments (%.1f minutes total)", len(windows), float64(totalMs)/60000))

	workDir, err := os.MkdirTemp(p.opts.TempDir, "scribe-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	ticks := &windowProgress{sink: p.progress, sessionID: sessionID, last: segmentingPct}
	results := p.transcribeWindows(ctx, ticks, src, windows, workDir, report, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.progress.Publish(sessionID, progress.StageMerging, 78, "Merging transcription results...")

	merged, stats, err := Merge(results, float64(p.opts.OverlapMs)/1000)
	if err != nil {
		return nil, err
	}
	report.Offsets = stats.Offsets
	report.DroppedOverlap = stats.Dropped
	report.DroppedUntimed = stats.Untimed
	if stats.Untimed > 0 {
		log.Warn("Windows without segment timestamps lost their text in the overlap trim",
			logger.Int("windows", stats.Untimed))
	}

	attempted := report.WindowsPlanned - report.WindowsSkipped
	if attempted > 0 && report.WindowsSucceeded == 0 {
		return &merged, fmt.Errorf("%w: %d of %d windows failed", ErrNoUsableWindows, report.WindowsFailed, attempted)
	}

	p.progress.Publish(sessionID, progress.StageTranscriptionComplete, 78, "Speech recognition complete")
	return &merged, nil
}

// windowProgress serializes the per-window ticks and never lets the
// percentage fall below the highest one already published, whatever order
// the workers finish in.
type windowProgress struct {
	mu        sync.Mutex
	sink      ProgressSink
	sessionID string
	last      int
}

func (wp *windowProgress) publish(stage progress.Stage, pct int, message string) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if pct < wp.last {
		pct = wp.last
	}
	wp.last = pct
	wp.sink.Publish(wp.sessionID, stage, pct, message)
}

// transcribeWindows runs every non-skipped window through the transcriber
// with at most ParallelWindows in flight. Failed windows are logged and left
// out of the returned slice.
func (p *Pipeline) transcribeWindows(ctx context.Context, ticks *windowProgress, src audio.Source, windows []Window, workDir string, report *Report, log *logger.Logger) []WindowTranscript {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		results   []WindowTranscript
		completed int64
		total     = len(windows)
		sem       = make(chan struct{}, p.opts.ParallelWindows)
	)

	for _, w := range windows {
		if w.Skip {
			log.Warn("Window too short, skipping",
				logger.Int("index", w.Index),
				logger.Int64("duration_ms", w.DurationMs()))
			mu.Lock()
			report.WindowsSkipped++
			mu.Unlock()
			atomic.AddInt64(&completed, 1)
			continue
		}

		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(w Window) {
			defer wg.Done()
			defer func() { <-sem }()

			ticks.publish(progress.StageSplitting, 10+w.Index*5/total,
				fmt.Sprintf("Cutting segment %d/%d (%d remaining)...", w.Index+1, total, total-w.Index-1))

			wt, err := p.transcribeWindow(ctx, ticks, src, w, total, workDir, &completed)
			done := atomic.AddInt64(&completed, 1)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					log.Error("Window failed, continuing without it",
						logger.Int("index", w.Index),
						logger.Error(err))
				}
				report.WindowsFailed++
				return
			}
			report.WindowsSucceeded++
			results = append(results, *wt)

			chars := 0
			for _, s := range wt.Segments {
				chars += len([]rune(s.Text))
			}
			ticks.publish(progress.StageTranscribing, 15+int(done)*63/total,
				fmt.Sprintf("Segment %d/%d done (%d characters)", w.Index+1, total, chars))
		}(w)
	}

	wg.Wait()
	return results
}

// transcribeWindow exports one window to a temporary file, transcribes it and
// removes the file again on every path
func (p *Pipeline) transcribeWindow(ctx context.Context, ticks *windowProgress, src audio.Source, w Window, total int, workDir string, completed *int64) (*WindowTranscript, error) {
	slicePath := filepath.Join(workDir, fmt.Sprintf("segment_%03d.wav", w.Index))
	defer os.Remove(slicePath)

	if err := src.ExportSlice(ctx, w.StartMs, w.EndMs, slicePath); err != nil {
		return nil, fmt.Errorf("failed to export window %d: %w", w.Index, err)
	}

	data, err := os.ReadFile(slicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read window %d: %w", w.Index, err)
	}
	if int64(len(data)) > p.opts.MaxWindowBytes {
		return nil, fmt.Errorf("%w: window %d is %d bytes", ErrWindowTooLarge, w.Index, len(data))
	}

	ticks.publish(progress.StageTranscribing, 15+int(atomic.LoadInt64(completed))*63/total,
		fmt.Sprintf("Transcribing segment %d/%d (%.1fMB)...", w.Index+1, total, float64(len(data))/1024/1024))

	raw, err := p.transcriber.Transcribe(ctx, filepath.Base(slicePath), data)
	if err != nil {
		return nil, err
	}

	duration := raw.Duration
	if duration <= 0 {
		duration = float64(w.DurationMs()) / 1000
	}

	return &WindowTranscript{
		Index:       w.Index,
		Segments:    raw.Segments,
		StartOffset: float64(w.StartMs) / 1000,
		Duration:    duration,
		Untimed:     raw.Untimed,
	}, nil
}
