package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/yegors/interview-scribe/internal/progress"
)

const barWidth = 30

// ProgressBar renders the progress events of one session on a terminal line.
// It satisfies progress.Observer.
type ProgressBar struct {
	mu      sync.Mutex
	out     io.Writer
	started time.Time
	last    progress.Event
	done    bool
}

// NewProgressBar creates a bar that draws to out
func NewProgressBar(out io.Writer) *ProgressBar {
	return &ProgressBar{out: out, started: time.Now()}
}

// Send draws ev. Terminal stages end the line.
func (p *ProgressBar) Send(ev progress.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return nil
	}
	p.last = ev

	switch ev.Stage {
	case progress.StageError:
		p.done = true
		_, err := fmt.Fprintf(p.out, "\r%s\n", color.RedString("✗ %s", ev.Message))
		return err
	case progress.StageCompleted:
		p.done = true
		_, err := fmt.Fprintf(p.out, "\r%s\n", color.GreenString(p.line(ev)))
		return err
	default:
		_, err := fmt.Fprint(p.out, "\r"+color.CyanString(p.line(ev)))
		return err
	}
}

// Last returns the most recent event drawn
func (p *ProgressBar) Last() progress.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *ProgressBar) line(ev progress.Event) string {
	filled := ev.Progress * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return fmt.Sprintf("[%s] %3d%% | %s | %-24s", bar, ev.Progress, formatDuration(time.Since(p.started)), ev.Message)
}

// formatDuration renders d as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
