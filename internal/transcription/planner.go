package transcription

import "fmt"

// DefaultMinWindowMs is the shortest window worth sending to the service
const DefaultMinWindowMs = 100

// WindowPlan describes how a recording is cut into overlapping windows
type WindowPlan struct {
	WindowMs    int64
	OverlapMs   int64
	MinWindowMs int64
}

// PlanWindows cuts totalMs into windows of windowMs, each extended by
// overlapMs into the next one
func PlanWindows(totalMs, windowMs, overlapMs int64) ([]Window, error) {
	return WindowPlan{WindowMs: windowMs, OverlapMs: overlapMs, MinWindowMs: DefaultMinWindowMs}.Plan(totalMs)
}

// Plan returns ceil(totalMs/WindowMs) windows. Window i starts at i*WindowMs
// and ends at min(start+WindowMs+OverlapMs, totalMs). Windows shorter than
// MinWindowMs are kept in the plan but marked Skip.
func (p WindowPlan) Plan(totalMs int64) ([]Window, error) {
	if totalMs <= 0 {
		return nil, fmt.Errorf("%w: total duration must be positive, got %d ms", ErrPlanning, totalMs)
	}
	if p.WindowMs <= 0 {
		return nil, fmt.Errorf("%w: window length must be positive, got %d ms", ErrPlanning, p.WindowMs)
	}
	if p.OverlapMs < 0 || p.OverlapMs >= p.WindowMs {
		return nil, fmt.Errorf("%w: overlap %d ms must be in [0, %d)", ErrPlanning, p.OverlapMs, p.WindowMs)
	}

	count := (totalMs + p.WindowMs - 1) / p.WindowMs
	windows := make([]Window, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * p.WindowMs
		end := start + p.WindowMs + p.OverlapMs
		if end > totalMs {
			end = totalMs
		}
		w := Window{Index: int(i), StartMs: start, EndMs: end}
		w.Skip = w.DurationMs() < p.MinWindowMs
		windows = append(windows, w)
	}
	return windows, nil
}
