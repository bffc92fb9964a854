package audio

import (
	"context"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/yegors/interview-scribe/pkg/logger"
)

const framesPerRead = 4096

// Slices are written in the format the transcription service expects, which
// is also what the ffmpeg path produces. Sources below exportSampleRate keep
// their rate.
const (
	exportSampleRate = 16000
	exportBitDepth   = 16
)

// WAVLoader decodes PCM WAV files natively without spawning ffmpeg
type WAVLoader struct {
	logger *logger.Logger
}

// NewWAVLoader creates a new WAV loader
func NewWAVLoader(log *logger.Logger) *WAVLoader {
	return &WAVLoader{logger: log.Named("wav")}
}

type wavSource struct {
	path       string
	sampleRate int
	channels   int
	bitDepth   int
	frames     int64
	logger     *logger.Logger
}

// Load reads the WAV headers and computes the exact length from the PCM chunk
func (l *WAVLoader) Load(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", ErrUnsupportedFormat, path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: wav audio format %d is not linear PCM", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate PCM data: %w", err)
	}

	blockAlign := int64(dec.NumChans) * int64(bytesPerSample(int(dec.BitDepth)))
	if blockAlign == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: invalid wav header", ErrUnsupportedFormat)
	}

	src := &wavSource{
		path:       path,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
		frames:     int64(dec.PCMSize) / blockAlign,
		logger:     l.logger,
	}

	l.logger.Debug("Loaded wav file",
		String("path", path),
		Int64("duration_ms", src.DurationMs()),
		Int("sample_rate", src.sampleRate),
		Int("channels", src.channels),
		Int("bit_depth", src.bitDepth))

	return src, nil
}

func (s *wavSource) DurationMs() int64 {
	return s.frames * 1000 / int64(s.sampleRate)
}

func (s *wavSource) SampleRate() int {
	return s.sampleRate
}

func (s *wavSource) Channels() int {
	return s.channels
}

func (s *wavSource) Close() error {
	return nil
}

// ExportSlice writes the frames covering [startMs, endMs) into a new mono
// 16-bit WAV file, resampled down to 16 kHz when the source rate is higher
func (s *wavSource) ExportSlice(ctx context.Context, startMs, endMs int64, dst string) error {
	startFrame := startMs * int64(s.sampleRate) / 1000
	endFrame := endMs * int64(s.sampleRate) / 1000
	if endFrame > s.frames {
		endFrame = s.frames
	}
	if startFrame < 0 || endFrame <= startFrame {
		return fmt.Errorf("%w: [%d, %d) ms", ErrEmptySlice, startMs, endMs)
	}

	in, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open wav file: %w", err)
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("failed to locate PCM data: %w", err)
	}

	blockAlign := int64(s.channels * bytesPerSample(s.bitDepth))
	if _, err := io.CopyN(io.Discard, dec.PCMChunk.R, startFrame*blockAlign); err != nil {
		return fmt.Errorf("failed to seek to slice start: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create slice file: %w", err)
	}
	defer out.Close()

	outRate := s.sampleRate
	if outRate > exportSampleRate {
		outRate = exportSampleRate
	}
	enc := wav.NewEncoder(out, outRate, exportBitDepth, 1, 1)
	rs := newResampler(s.sampleRate, outRate)
	outBuf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: outRate},
		SourceBitDepth: exportBitDepth,
	}

	data := make([]int, framesPerRead*s.channels)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: s.channels, SampleRate: s.sampleRate},
		SourceBitDepth: s.bitDepth,
	}
	mono := make([]int, 0, framesPerRead)

	remaining := (endFrame - startFrame) * int64(s.channels)
	written := 0
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := int64(len(data))
		if remaining < want {
			want = remaining
		}
		buf.Data = data[:want]

		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("failed to read PCM data: %w", err)
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)

		mono = downmix(mono[:0], buf.Data[:n], s.channels, s.bitDepth)
		outBuf.Data = rs.push(mono)
		if len(outBuf.Data) > 0 {
			if err := enc.Write(outBuf); err != nil {
				return fmt.Errorf("failed to write slice: %w", err)
			}
			written += len(outBuf.Data)
		}
	}

	outBuf.Data = rs.flush()
	if len(outBuf.Data) > 0 {
		if err := enc.Write(outBuf); err != nil {
			return fmt.Errorf("failed to write slice: %w", err)
		}
		written += len(outBuf.Data)
	}

	if written == 0 {
		return fmt.Errorf("%w: no samples in [%d, %d) ms", ErrEmptySlice, startMs, endMs)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize slice: %w", err)
	}
	return nil
}

// downmix averages interleaved frames into one 16-bit channel, appending to dst.
// A trailing partial frame is ignored.
func downmix(dst, interleaved []int, channels, bitDepth int) []int {
	for i := 0; i+channels <= len(interleaved); i += channels {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += to16Bit(interleaved[i+c], bitDepth)
		}
		dst = append(dst, sum/channels)
	}
	return dst
}

// to16Bit rescales a decoded sample to the signed 16-bit range. 8-bit WAV
// samples are unsigned.
func to16Bit(v, bitDepth int) int {
	switch {
	case bitDepth == 8:
		return (v - 128) << 8
	case bitDepth > 16:
		return v >> (bitDepth - 16)
	case bitDepth < 16:
		return v << (16 - bitDepth)
	default:
		return v
	}
}

// resampler converts a mono stream from inRate to outRate by linear
// interpolation. Input arrives in chunks; push returns the output samples
// that can be computed so far.
type resampler struct {
	inRate  int64
	outRate int64
	next    int64 // index of the next output sample
	base    int64 // input index of pending[0]
	pending []int
	out     []int
}

func newResampler(inRate, outRate int) *resampler {
	return &resampler{inRate: int64(inRate), outRate: int64(outRate)}
}

func (r *resampler) push(samples []int) []int {
	r.pending = append(r.pending, samples...)
	r.out = r.out[:0]

	for {
		pos := r.next * r.inRate
		idx := pos / r.outRate
		local := idx - r.base
		if local+1 >= int64(len(r.pending)) {
			break
		}
		a, b := int64(r.pending[local]), int64(r.pending[local+1])
		frac := pos % r.outRate
		r.out = append(r.out, int(a+(b-a)*frac/r.outRate))
		r.next++
	}

	// keep the sample the next output starts from
	idx := r.next * r.inRate / r.outRate
	if drop := idx - r.base; drop > 0 {
		if drop > int64(len(r.pending)) {
			drop = int64(len(r.pending))
		}
		r.pending = append(r.pending[:0], r.pending[drop:]...)
		r.base += drop
	}
	return r.out
}

// flush emits the output samples that fall on the last input sample
func (r *resampler) flush() []int {
	r.out = r.out[:0]
	for {
		idx := r.next * r.inRate / r.outRate
		local := idx - r.base
		if local >= int64(len(r.pending)) {
			break
		}
		r.out = append(r.out, r.pending[local])
		r.next++
	}
	r.pending = r.pending[:0]
	return r.out
}

func bytesPerSample(bitDepth int) int {
	return (bitDepth-1)/8 + 1
}
