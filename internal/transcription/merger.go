package transcription

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// NoSpeechText is the FullText body used when a transcript has no segments
const NoSpeechText = "(no speech recognized)"

// MergeStats describes how window transcripts were laid out on the timeline
type MergeStats struct {
	Offsets       []float64 // cumulative offset applied to each merged window, in index order
	TotalDuration float64   // cumulative offset after the last window
	Dropped       int       // segments removed as overlap duplicates
	Untimed       int       // of Dropped, untimed text that had no other place on the timeline
}

// Merge combines window transcripts into one transcript on the recording's
// timeline. Windows are ordered by index. Every window after the first loses
// the segments that start inside its leading overlap, since the previous
// window already covered that audio. The cumulative offset advances by
// Duration-overlap per window and by the full Duration after the last one.
//
// Missing indices (failed windows) re-anchor the offset to the next present
// window's StartOffset so the windows after a gap keep their true position.
func Merge(windows []WindowTranscript, overlapSeconds float64) (Result, MergeStats, error) {
	var stats MergeStats

	if overlapSeconds < 0 {
		return Result{}, stats, fmt.Errorf("%w: negative overlap %.3f", ErrMergeInconsistency, overlapSeconds)
	}

	sorted := make([]WindowTranscript, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Index == sorted[i-1].Index {
			return Result{}, stats, fmt.Errorf("%w: duplicate window index %d", ErrMergeInconsistency, sorted[i].Index)
		}
	}

	var (
		merged     []Segment
		cumulative float64
		expected   int
	)
	for i, w := range sorted {
		if w.Duration < 0 {
			return Result{}, stats, fmt.Errorf("%w: window %d has negative duration %.3f", ErrMergeInconsistency, w.Index, w.Duration)
		}
		if w.Index != expected {
			cumulative = w.StartOffset
		}
		if cumulative < 0 {
			return Result{}, stats, fmt.Errorf("%w: window %d has negative offset %.3f", ErrMergeInconsistency, w.Index, cumulative)
		}
		stats.Offsets = append(stats.Offsets, cumulative)

		for _, seg := range w.Segments {
			if i > 0 && seg.Start < overlapSeconds {
				stats.Dropped++
				if w.Untimed {
					stats.Untimed++
				}
				continue
			}
			merged = append(merged, Segment{
				Start: seg.Start + cumulative,
				End:   seg.End + cumulative,
				Text:  seg.Text,
			})
		}

		if i < len(sorted)-1 {
			cumulative += w.Duration - overlapSeconds
		} else {
			cumulative += w.Duration
		}
		expected = w.Index + 1
	}
	stats.TotalDuration = cumulative

	return BuildResult(merged), stats, nil
}

// BuildResult renders FullText from segments, one "【HH:MM:SS】text" line each
func BuildResult(segments []Segment) Result {
	if len(segments) == 0 {
		return Result{
			Segments: []Segment{},
			FullText: "【" + FormatTimestamp(0) + "】" + NoSpeechText,
		}
	}

	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		lines = append(lines, "【"+FormatTimestamp(s.Start)+"】"+s.Text)
	}

	out := make([]Segment, len(segments))
	copy(out, segments)
	return Result{
		Segments: out,
		FullText: strings.Join(lines, "\n"),
	}
}

// FormatTimestamp renders whole seconds as HH:MM:SS
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
