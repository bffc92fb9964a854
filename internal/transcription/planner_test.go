package transcription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWindowsScenario(t *testing.T) {
	windows, err := PlanWindows(300000, 120000, 15000)
	require.NoError(t, err)

	assert.Equal(t, []Window{
		{Index: 0, StartMs: 0, EndMs: 135000},
		{Index: 1, StartMs: 120000, EndMs: 255000},
		{Index: 2, StartMs: 240000, EndMs: 300000},
	}, windows)
}

func TestPlanWindowsCoverage(t *testing.T) {
	tests := []struct {
		total, window, overlap int64
	}{
		{1, 120000, 15000},
		{119999, 120000, 15000},
		{120000, 120000, 15000},
		{120001, 120000, 15000},
		{3600000, 120000, 15000},
		{1000, 300, 0},
		{987654, 60000, 59999},
	}

	for _, tt := range tests {
		windows, err := PlanWindows(tt.total, tt.window, tt.overlap)
		require.NoError(t, err)

		want := (tt.total + tt.window - 1) / tt.window
		require.Len(t, windows, int(want))

		assert.Equal(t, int64(0), windows[0].StartMs)
		assert.Equal(t, tt.total, windows[len(windows)-1].EndMs)
		for i, w := range windows {
			assert.Equal(t, i, w.Index)
			assert.Equal(t, int64(i)*tt.window, w.StartMs)
			assert.LessOrEqual(t, w.EndMs, tt.total)
			assert.Greater(t, w.EndMs, w.StartMs)
			if i > 0 {
				// every window starts at or before the previous window's end: no gaps
				assert.LessOrEqual(t, w.StartMs, windows[i-1].EndMs)
			}
		}
	}
}

func TestPlanWindowsMarksShortWindows(t *testing.T) {
	windows, err := PlanWindows(240050, 120000, 15000)
	require.NoError(t, err)
	require.Len(t, windows, 3)

	assert.False(t, windows[0].Skip)
	assert.False(t, windows[1].Skip)
	assert.True(t, windows[2].Skip)
	assert.Equal(t, int64(50), windows[2].DurationMs())
}

func TestPlanWindowsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name                   string
		total, window, overlap int64
	}{
		{"zero total", 0, 120000, 15000},
		{"negative total", -5, 120000, 15000},
		{"zero window", 1000, 0, 0},
		{"negative overlap", 1000, 100, -1},
		{"overlap equals window", 1000, 100, 100},
		{"overlap exceeds window", 1000, 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanWindows(tt.total, tt.window, tt.overlap)
			assert.ErrorIs(t, err, ErrPlanning)
		})
	}
}

func TestWindowPlanCustomMinimum(t *testing.T) {
	windows, err := WindowPlan{WindowMs: 1000, OverlapMs: 0, MinWindowMs: 500}.Plan(2400)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.True(t, windows[2].Skip)
}
