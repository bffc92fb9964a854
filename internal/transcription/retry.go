package transcription

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/yegors/interview-scribe/pkg/logger"
)

// RetryPolicy bounds how a single file is sent to the service
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration // per attempt
	Backoff     time.Duration // fixed wait between attempts
}

// DefaultRetryPolicy returns 3 attempts of 120s each, 5s apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Timeout:     120 * time.Second,
		Backoff:     5 * time.Second,
	}
}

type attemptState int

const (
	statePending attemptState = iota
	stateAttempting
	stateSucceeded
	stateFailed
)

func (s attemptState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateAttempting:
		return "attempting"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// attempt tracks one file through Pending -> Attempting(n) -> Succeeded | Failed
type attempt struct {
	state   attemptState
	n       int
	max     int
	lastErr error
}

func newAttempt(maxAttempts int) *attempt {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &attempt{state: statePending, max: maxAttempts}
}

func (a *attempt) begin() {
	a.n++
	a.state = stateAttempting
}

func (a *attempt) succeed() {
	a.state = stateSucceeded
	a.lastErr = nil
}

// fail records a classified error and reports whether another attempt is allowed
func (a *attempt) fail(err error) bool {
	a.lastErr = err
	if a.n >= a.max {
		a.state = stateFailed
		return false
	}
	return true
}

func (a *attempt) err() error {
	return fmt.Errorf("transcription failed after %d attempts: %w", a.n, a.lastErr)
}

// Transcriber sends one file to the service with a per-attempt timeout and a
// bounded number of retries
type Transcriber struct {
	client Client
	policy RetryPolicy
	logger *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTranscriber wraps client with the given retry policy
func NewTranscriber(client Client, policy RetryPolicy, log *logger.Logger) *Transcriber {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultRetryPolicy().Timeout
	}
	return &Transcriber{
		client: client,
		policy: policy,
		logger: log.Named("transcriber"),
		sleep:  sleepContext,
	}
}

// Transcribe runs the attempt state machine. Timeouts and service errors are
// retried the same way; cancellation of ctx stops immediately and returns
// ctx.Err(). ErrMissingAPIKey fails on the first attempt.
func (t *Transcriber) Transcribe(ctx context.Context, name string, audio []byte) (*RawTranscript, error) {
	a := newAttempt(t.policy.MaxAttempts)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.begin()
		t.logger.Debug("Transcription attempt",
			logger.String("file", name),
			logger.Int("attempt", a.n),
			logger.Int("max_attempts", a.max))

		attemptCtx, cancel := context.WithTimeout(ctx, t.policy.Timeout)
		raw, err := t.client.Transcribe(attemptCtx, name, audio)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			a.succeed()
			return raw, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		classified := classify(err, timedOut)
		if errors.Is(err, ErrMissingAPIKey) {
			a.fail(classified)
			a.state = stateFailed
			t.logger.Error("Transcription failed, not retrying",
				logger.String("file", name),
				logger.Error(err))
			return nil, a.err()
		}
		if !a.fail(classified) {
			t.logger.Error("Transcription failed, attempts exhausted",
				logger.String("file", name),
				logger.Int("attempts", a.n),
				logger.Error(classified))
			return nil, a.err()
		}

		t.logger.Warn("Transcription attempt failed, retrying",
			logger.String("file", name),
			logger.Int("attempt", a.n),
			logger.Duration("backoff", t.policy.Backoff),
			logger.Error(classified))

		if err := t.sleep(ctx, t.policy.Backoff); err != nil {
			return nil, err
		}
	}
}

func classify(err error, timedOut bool) error {
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTranscriptionTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTranscriptionTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTranscriptionService, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
