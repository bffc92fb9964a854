package transcription

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioWindows() []WindowTranscript {
	return []WindowTranscript{
		{
			Index: 0, StartOffset: 0, Duration: 135,
			Segments: []Segment{
				{Start: 0, End: 4, Text: "Thanks for joining us today."},
				{Start: 118, End: 124, Text: "Tell me about your last role."},
				{Start: 126, End: 132, Text: "I led the payments team."},
			},
		},
		{
			Index: 1, StartOffset: 120, Duration: 135,
			Segments: []Segment{
				{Start: 6, End: 12, Text: "I led the payments team."},
				{Start: 15, End: 20, Text: "We shipped three launches."},
				{Start: 130, End: 134, Text: "What drew you to us?"},
			},
		},
		{
			Index: 2, StartOffset: 240, Duration: 60,
			Segments: []Segment{
				{Start: 10, End: 14, Text: "What drew you to us?"},
				{Start: 20, End: 30, Text: "The mission, honestly."},
			},
		},
	}
}

func TestMergeScenario(t *testing.T) {
	result, stats, err := Merge(scenarioWindows(), 15)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 120, 240}, stats.Offsets)
	assert.InDelta(t, 300, stats.TotalDuration, 1e-9)
	assert.Equal(t, 2, stats.Dropped)

	assert.Equal(t, []Segment{
		{Start: 0, End: 4, Text: "Thanks for joining us today."},
		{Start: 118, End: 124, Text: "Tell me about your last role."},
		{Start: 126, End: 132, Text: "I led the payments team."},
		{Start: 135, End: 140, Text: "We shipped three launches."},
		{Start: 250, End: 254, Text: "What drew you to us?"},
		{Start: 260, End: 270, Text: "The mission, honestly."},
	}, result.Segments)
}

func TestMergeIsOrderIndependent(t *testing.T) {
	want, wantStats, err := Merge(scenarioWindows(), 15)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		in := scenarioWindows()
		rng.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })

		got, gotStats, err := Merge(in, 15)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, wantStats, gotStats)
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	in := scenarioWindows()
	in[0], in[2] = in[2], in[0]
	before := fmt.Sprintf("%+v", in)

	_, _, err := Merge(in, 15)
	require.NoError(t, err)
	assert.Equal(t, before, fmt.Sprintf("%+v", in))
}

func TestMergeOverlapTrim(t *testing.T) {
	windows := []WindowTranscript{
		{Index: 0, Duration: 135, Segments: []Segment{{Start: 1, End: 2, Text: "first window keeps its opening"}}},
		{Index: 1, StartOffset: 120, Duration: 135, Segments: []Segment{
			{Start: 14.99, End: 16, Text: "inside overlap"},
			{Start: 15, End: 17, Text: "on the boundary"},
		}},
	}

	result, _, err := Merge(windows, 15)
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	assert.Equal(t, "first window keeps its opening", result.Segments[0].Text)
	assert.Equal(t, "on the boundary", result.Segments[1].Text)
	for i, s := range result.Segments {
		if i > 0 {
			// no surviving segment of window 1 starts before 120+15
			assert.GreaterOrEqual(t, s.Start, 135.0)
		}
	}
}

func TestMergeEmpty(t *testing.T) {
	result, stats, err := Merge(nil, 15)
	require.NoError(t, err)

	assert.Empty(t, result.Segments)
	assert.Equal(t, "【00:00:00】"+NoSpeechText, result.FullText)
	assert.Zero(t, stats.TotalDuration)
}

func TestMergeAllSegmentsTrimmed(t *testing.T) {
	windows := []WindowTranscript{
		{Index: 0, Duration: 135},
		{Index: 1, StartOffset: 120, Duration: 50, Segments: []Segment{{Start: 3, End: 5, Text: "dup"}}},
	}
	result, _, err := Merge(windows, 15)
	require.NoError(t, err)
	assert.Equal(t, "【00:00:00】"+NoSpeechText, result.FullText)
}

func TestMergeCountsUntimedDrops(t *testing.T) {
	windows := []WindowTranscript{
		{Index: 0, Duration: 135, Untimed: true, Segments: []Segment{{Start: 0, End: 135, Text: "opening kept"}}},
		{Index: 1, StartOffset: 120, Duration: 135, Untimed: true, Segments: []Segment{{Start: 0, End: 135, Text: "no timestamps"}}},
		{Index: 2, StartOffset: 240, Duration: 60, Segments: []Segment{{Start: 3, End: 5, Text: "dup"}}},
	}

	result, stats, err := Merge(windows, 15)
	require.NoError(t, err)

	require.Len(t, result.Segments, 1)
	assert.Equal(t, "opening kept", result.Segments[0].Text)
	assert.Equal(t, 2, stats.Dropped)
	assert.Equal(t, 1, stats.Untimed)
}

func TestMergeFailureIsolation(t *testing.T) {
	windows := scenarioWindows()
	// window 1 failed and never reached the merger
	windows = append(windows[:1], windows[2])

	result, stats, err := Merge(windows, 15)
	require.NoError(t, err)

	// window 2 keeps its true position on the timeline
	assert.Equal(t, []float64{0, 240}, stats.Offsets)
	assert.InDelta(t, 300, stats.TotalDuration, 1e-9)

	var texts []string
	for _, s := range result.Segments {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{
		"Thanks for joining us today.",
		"Tell me about your last role.",
		"I led the payments team.",
		"The mission, honestly.",
	}, texts)
	assert.Equal(t, 260.0, result.Segments[3].Start)
}

func TestMergeMissingFirstWindow(t *testing.T) {
	windows := scenarioWindows()[1:]

	_, stats, err := Merge(windows, 15)
	require.NoError(t, err)
	assert.Equal(t, []float64{120, 240}, stats.Offsets)
}

func TestMergeInconsistencies(t *testing.T) {
	dup := scenarioWindows()
	dup[2].Index = 1

	neg := scenarioWindows()
	neg[1].Duration = -1

	offset := []WindowTranscript{
		{Index: 0, Duration: 5},
		{Index: 1, Duration: 5},
	}

	_, _, err := Merge(dup, 15)
	assert.ErrorIs(t, err, ErrMergeInconsistency)

	_, _, err = Merge(neg, 15)
	assert.ErrorIs(t, err, ErrMergeInconsistency)

	// 5 - 15 pushes the second window before the start of the recording
	_, _, err = Merge(offset, 15)
	assert.ErrorIs(t, err, ErrMergeInconsistency)

	_, _, err = Merge(scenarioWindows(), -1)
	assert.ErrorIs(t, err, ErrMergeInconsistency)
}

func TestBuildResultFullText(t *testing.T) {
	segments := []Segment{
		{Start: 0.4, End: 3, Text: "Hello."},
		{Start: 59.999, End: 61, Text: "One minute in."},
		{Start: 3725.2, End: 3730, Text: "Past the hour."},
	}
	result := BuildResult(segments)

	assert.Equal(t, "【00:00:00】Hello.\n【00:00:59】One minute in.\n【01:02:05】Past the hour.", result.FullText)

	// FullText is re-derivable from Segments
	lines := strings.Split(result.FullText, "\n")
	require.Len(t, lines, len(result.Segments))
	for i, s := range result.Segments {
		assert.Equal(t, "【"+FormatTimestamp(s.Start)+"】"+s.Text, lines[i])
	}
	assert.Equal(t, result, BuildResult(result.Segments))
}

func TestBuildResultCopiesSegments(t *testing.T) {
	segments := []Segment{{Start: 1, End: 2, Text: "a"}}
	result := BuildResult(segments)
	segments[0].Text = "changed"
	assert.Equal(t, "a", result.Segments[0].Text)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatTimestamp(0))
	assert.Equal(t, "00:00:09", FormatTimestamp(9.99))
	assert.Equal(t, "00:02:00", FormatTimestamp(120))
	assert.Equal(t, "10:00:00", FormatTimestamp(36000))
	assert.Equal(t, "00:00:00", FormatTimestamp(-3))
}
