package audio

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/yegors/interview-scribe/pkg/logger"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	streamRe   = regexp.MustCompile(`Audio:.*?(\d+) Hz, (mono|stereo|(\d+) channels)`)
)

// commandRunner runs an external command and returns its combined output
type commandRunner interface {
	CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FFmpegLoader opens any container ffmpeg can decode. Slices are re-encoded
// to 16 kHz mono PCM WAV, which is what the speech-to-text service prefers.
type FFmpegLoader struct {
	ffmpegPath string
	runner     commandRunner
	logger     *logger.Logger
}

// NewFFmpegLoader creates a new ffmpeg-backed loader
func NewFFmpegLoader(ffmpegPath string, log *logger.Logger) *FFmpegLoader {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegLoader{
		ffmpegPath: ffmpegPath,
		runner:     execRunner{},
		logger:     log.Named("ffmpeg"),
	}
}

type ffmpegSource struct {
	loader     *FFmpegLoader
	path       string
	durationMs int64
	sampleRate int
	channels   int
}

// Load probes the file for its duration and stream layout
func (l *FFmpegLoader) Load(ctx context.Context, path string) (Source, error) {
	// Without an output ffmpeg exits non-zero after printing the input info
	output, err := l.runner.CombinedOutput(ctx, l.ffmpegPath, []string{"-hide_banner", "-i", path})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && len(output) == 0 {
		return nil, fmt.Errorf("failed to run ffmpeg: %w", err)
	}

	duration, perr := parseDuration(string(output))
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, perr)
	}

	src := &ffmpegSource{
		loader:     l,
		path:       path,
		durationMs: duration.Milliseconds(),
	}
	src.sampleRate, src.channels = parseStream(string(output))

	l.logger.Debug("Probed audio file",
		String("path", path),
		Int64("duration_ms", src.durationMs),
		Int("sample_rate", src.sampleRate),
		Int("channels", src.channels))

	return src, nil
}

func (s *ffmpegSource) DurationMs() int64 {
	return s.durationMs
}

func (s *ffmpegSource) SampleRate() int {
	return s.sampleRate
}

func (s *ffmpegSource) Channels() int {
	return s.channels
}

func (s *ffmpegSource) Close() error {
	return nil
}

// ExportSlice extracts [startMs, endMs) with ffmpeg
func (s *ffmpegSource) ExportSlice(ctx context.Context, startMs, endMs int64, dst string) error {
	if endMs > s.durationMs {
		endMs = s.durationMs
	}
	if startMs < 0 || endMs <= startMs {
		return fmt.Errorf("%w: [%d, %d) ms", ErrEmptySlice, startMs, endMs)
	}

	args := []string{
		"-y",
		"-loglevel", "error",
		"-i", s.path,
		"-ss", formatFFmpegTime(time.Duration(startMs) * time.Millisecond),
		"-to", formatFFmpegTime(time.Duration(endMs) * time.Millisecond),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dst,
	}

	output, err := s.loader.runner.CombinedOutput(ctx, s.loader.ffmpegPath, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg failed to extract slice: %w: %s", err, string(output))
	}
	return nil
}

// parseDuration extracts "Duration: HH:MM:SS.ff" from ffmpeg's input banner
func parseDuration(output string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}

	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])

	// Normalize the fractional part to milliseconds
	frac := m[4]
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac[:3])

	d := time.Duration(h)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond
	if d <= 0 {
		return 0, fmt.Errorf("ffmpeg reported zero duration")
	}
	return d, nil
}

// parseStream extracts the sample rate and channel count of the first audio stream
func parseStream(output string) (int, int) {
	m := streamRe.FindStringSubmatch(output)
	if m == nil {
		return 0, 0
	}
	rate, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "mono":
		return rate, 1
	case "stereo":
		return rate, 2
	default:
		ch, _ := strconv.Atoi(m[3])
		return rate, ch
	}
}

// formatFFmpegTime formats a duration for ffmpeg -ss/-to arguments
func formatFFmpegTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
