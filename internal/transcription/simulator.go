package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/yegors/interview-scribe/internal/progress"
)

// simulatedSteps are published while a single long request is in flight
var simulatedSteps = []struct {
	pct     int
	message string
}{
	{20, "Analyzing audio data..."},
	{25, "Recognizing speech patterns..."},
	{35, "Identifying words..."},
	{45, "Building sentences..."},
	{55, "Analyzing context..."},
	{65, "Final adjustments..."},
	{70, "Finishing speech recognition..."},
}

// simulatorInterval spreads the steps over the estimated processing time
func simulatorInterval(estimated float64, lo, hi time.Duration) time.Duration {
	interval := time.Duration(estimated / float64(len(simulatedSteps)) * float64(time.Second))
	if interval < lo {
		interval = lo
	}
	if interval > hi {
		interval = hi
	}
	return interval
}

type simulator struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startSimulator publishes synthetic progress until the steps run out or stop is called
func startSimulator(ctx context.Context, sink ProgressSink, sessionID string, interval time.Duration) *simulator {
	ctx, cancel := context.WithCancel(ctx)
	s := &simulator{cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for _, step := range simulatedSteps {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			sink.Publish(sessionID, progress.StageTranscribing, step.pct, step.message)
		}
	}()

	return s
}

// stop cancels the simulator and waits for it to exit
func (s *simulator) stop() {
	s.cancel()
	s.wg.Wait()
}
