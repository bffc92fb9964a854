package audio

import (
	"context"
	"errors"
	"os"

	"github.com/go-audio/wav"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Int64  = logger.Int64
	Error  = logger.Error
)

var (
	// ErrUnsupportedFormat is returned when a file cannot be decoded by a loader
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrEmptySlice is returned when a requested slice contains no samples
	ErrEmptySlice = errors.New("audio slice is empty")
)

// Source is an opened recording that can be cut into time slices
type Source interface {
	// DurationMs returns the total length of the recording in milliseconds
	DurationMs() int64
	SampleRate() int
	Channels() int
	// ExportSlice writes [startMs, endMs) of the recording to dst as a WAV file
	ExportSlice(ctx context.Context, startMs, endMs int64, dst string) error
	Close() error
}

// Loader opens recordings from disk
type Loader interface {
	Load(ctx context.Context, path string) (Source, error)
}

// Library picks the native WAV decoder for PCM WAV files and falls back to
// ffmpeg for every other container
type Library struct {
	wav    *WAVLoader
	ffmpeg *FFmpegLoader
	logger *logger.Logger
}

// NewLibrary creates a loader that handles any format ffmpeg understands
func NewLibrary(ffmpegPath string, log *logger.Logger) *Library {
	return &Library{
		wav:    NewWAVLoader(log),
		ffmpeg: NewFFmpegLoader(ffmpegPath, log),
		logger: log.Named("audio"),
	}
}

// Load opens the recording at path
func (l *Library) Load(ctx context.Context, path string) (Source, error) {
	if IsPCMWAV(path) {
		src, err := l.wav.Load(ctx, path)
		if err == nil {
			return src, nil
		}
		l.logger.Warn("Native WAV decoding failed, falling back to ffmpeg",
			String("path", path),
			Error(err))
	}
	return l.ffmpeg.Load(ctx, path)
}

// IsPCMWAV reports whether path is a RIFF/WAVE file with linear PCM samples
func IsPCMWAV(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return false
	}
	return dec.WavAudioFormat == 1
}
