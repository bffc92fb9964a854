package progress

import (
	"sync"
	"time"

	"github.com/yegors/interview-scribe/pkg/logger"
)

// Stage names a step of the processing pipeline
type Stage string

const (
	StageUpload                Stage = "upload"
	StageValidation            Stage = "validation"
	StageTranscription         Stage = "transcription"
	StageLoading               Stage = "loading"
	StagePreparing             Stage = "preparing"
	StageSegmenting            Stage = "segmenting"
	StageSplitting             Stage = "splitting"
	StageTranscribing          Stage = "transcribing"
	StageMerging               Stage = "merging"
	StageTranscriptionComplete Stage = "transcription_complete"
	StageAnalysis              Stage = "analysis"
	StageCompleted             Stage = "completed"
	StageError                 Stage = "error"
)

// Event is one progress update for a session
type Event struct {
	Stage     Stage   `json:"stage"`
	Progress  int     `json:"progress"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"` // seconds since the broadcaster started
}

// Observer receives the events of one session. A non-nil error from Send
// means the observer is gone and it will be detached.
type Observer interface {
	Send(Event) error
}

type session struct {
	observers map[Observer]struct{}
	latest    *Event
}

// Broadcaster fans progress events out to the observers of each session and
// keeps the latest event per session
type Broadcaster struct {
	mu       sync.Mutex
	sessions map[string]*session
	started  time.Time
	logger   *logger.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		sessions: make(map[string]*session),
		started:  time.Now(),
		logger:   log.Named("progress"),
	}
}

// sessionLocked returns the session for id, creating it if needed. b.mu must be held.
func (b *Broadcaster) sessionLocked(id string) *session {
	s, ok := b.sessions[id]
	if !ok {
		s = &session{observers: make(map[Observer]struct{})}
		b.sessions[id] = s
	}
	return s
}

// Attach registers an observer for a session
func (b *Broadcaster) Attach(id string, o Observer) {
	b.mu.Lock()
	s := b.sessionLocked(id)
	s.observers[o] = struct{}{}
	count := len(s.observers)
	b.mu.Unlock()

	b.logger.Debug("Observer attached",
		logger.String("session_id", id),
		logger.Int("observers", count))
}

// Detach removes an observer. The session and its snapshot are discarded
// once no observers remain.
func (b *Broadcaster) Detach(id string, o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(id, o)
}

func (b *Broadcaster) detachLocked(id string, o Observer) {
	s, ok := b.sessions[id]
	if !ok {
		return
	}
	delete(s.observers, o)
	if len(s.observers) == 0 {
		delete(b.sessions, id)
		b.logger.Debug("Session closed", logger.String("session_id", id))
	}
}

// Publish stores the event as the session's snapshot and delivers it to every
// observer. Observers that fail to receive it are detached.
func (b *Broadcaster) Publish(id string, stage Stage, progress int, message string) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	b.mu.Lock()
	ev := Event{
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Since(b.started).Seconds(),
	}
	s := b.sessionLocked(id)
	s.latest = &ev
	targets := make([]Observer, 0, len(s.observers))
	for o := range s.observers {
		targets = append(targets, o)
	}
	b.mu.Unlock()

	b.logger.Debug("Progress",
		logger.String("session_id", id),
		logger.String("stage", string(stage)),
		logger.Int("progress", progress),
		logger.String("message", message))

	var failed []Observer
	for _, o := range targets {
		if err := o.Send(ev); err != nil {
			b.logger.Warn("Dropping observer after failed delivery",
				logger.String("session_id", id),
				logger.Error(err))
			failed = append(failed, o)
		}
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, o := range failed {
			b.detachLocked(id, o)
		}
		b.mu.Unlock()
	}
}

// Snapshot returns the latest event published for a session
func (b *Broadcaster) Snapshot(id string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok || s.latest == nil {
		return Event{}, false
	}
	return *s.latest, true
}

// Release drops a session that has no observers. Called when the request
// that published into it is finished.
func (b *Broadcaster) Release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[id]; ok && len(s.observers) == 0 {
		delete(b.sessions, id)
	}
}

// ObserverCount returns the number of observers attached to a session
func (b *Broadcaster) ObserverCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[id]; ok {
		return len(s.observers)
	}
	return 0
}

// SessionCount returns the number of live sessions
func (b *Broadcaster) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
