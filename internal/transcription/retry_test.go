package transcription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// scriptedClient returns the scripted errors in order, then succeeds
type scriptedClient struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	block    bool // wait for ctx instead of returning
	response *RawTranscript
}

func (c *scriptedClient) Transcribe(ctx context.Context, name string, audio []byte) (*RawTranscript, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= len(c.errs) {
		return nil, c.errs[n-1]
	}
	if c.response != nil {
		return c.response, nil
	}
	return &RawTranscript{Text: "ok", Segments: []Segment{{Start: 0, End: 1, Text: "ok"}}}, nil
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestTranscriber(client Client, policy RetryPolicy) (*Transcriber, *[]time.Duration) {
	var sleeps []time.Duration
	tr := NewTranscriber(client, policy, logger.NewNop())
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return tr, &sleeps
}

func TestTranscriberSucceedsFirstTry(t *testing.T) {
	client := &scriptedClient{}
	tr, sleeps := newTestTranscriber(client, DefaultRetryPolicy())

	raw, err := tr.Transcribe(context.Background(), "a.wav", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "ok", raw.Text)
	assert.Equal(t, 1, client.Calls())
	assert.Empty(t, *sleeps)
}

func TestTranscriberRetriesServiceErrors(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("502 bad gateway"), errors.New("connection reset")}}
	tr, sleeps := newTestTranscriber(client, RetryPolicy{MaxAttempts: 3, Timeout: time.Second, Backoff: 5 * time.Second})

	raw, err := tr.Transcribe(context.Background(), "a.wav", []byte("x"))
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Equal(t, 3, client.Calls())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *sleeps)
}

func TestTranscriberExhaustsOnServiceErrors(t *testing.T) {
	boom := errors.New("500 internal error")
	client := &scriptedClient{errs: []error{boom, boom, boom, boom}}
	tr, sleeps := newTestTranscriber(client, RetryPolicy{MaxAttempts: 3, Timeout: time.Second, Backoff: time.Second})

	_, err := tr.Transcribe(context.Background(), "a.wav", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscriptionService)
	assert.NotErrorIs(t, err, ErrTranscriptionTimeout)
	assert.Equal(t, 3, client.Calls())
	assert.Len(t, *sleeps, 2)
}

func TestTranscriberMissingKeyIsNotRetried(t *testing.T) {
	client := &scriptedClient{errs: []error{ErrMissingAPIKey, ErrMissingAPIKey, ErrMissingAPIKey}}
	tr, sleeps := newTestTranscriber(client, RetryPolicy{MaxAttempts: 3, Timeout: time.Second, Backoff: 5 * time.Second})

	_, err := tr.Transcribe(context.Background(), "a.wav", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.ErrorIs(t, err, ErrTranscriptionService)
	assert.Equal(t, 1, client.Calls())
	assert.Empty(t, *sleeps)
}

func TestTranscriberMissingKeyWithOpenAIClient(t *testing.T) {
	client := NewOpenAIClient("", "whisper-1", "", 5, logger.NewNop(), "http://127.0.0.1:1")
	tr, sleeps := newTestTranscriber(client, DefaultRetryPolicy())

	_, err := tr.Transcribe(context.Background(), "a.wav", []byte("x"))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Empty(t, *sleeps)
}

func TestTranscriberExhaustsOnTimeouts(t *testing.T) {
	client := &scriptedClient{block: true}
	tr, _ := newTestTranscriber(client, RetryPolicy{MaxAttempts: 2, Timeout: 10 * time.Millisecond})

	_, err := tr.Transcribe(context.Background(), "a.wav", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscriptionTimeout)
	assert.Equal(t, 2, client.Calls())
}

func TestTranscriberStopsOnParentCancellation(t *testing.T) {
	client := &scriptedClient{block: true}
	tr, sleeps := newTestTranscriber(client, RetryPolicy{MaxAttempts: 3, Timeout: time.Minute, Backoff: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := tr.Transcribe(ctx, "a.wav", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.Calls())
	assert.Empty(t, *sleeps)
}

func TestTranscriberCancelledBeforeStart(t *testing.T) {
	client := &scriptedClient{}
	tr, _ := newTestTranscriber(client, DefaultRetryPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transcribe(ctx, "a.wav", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.Calls())
}

func TestAttemptStateMachine(t *testing.T) {
	a := newAttempt(2)
	assert.Equal(t, statePending, a.state)

	a.begin()
	assert.Equal(t, stateAttempting, a.state)
	assert.Equal(t, 1, a.n)
	assert.True(t, a.fail(ErrTranscriptionService))
	assert.Equal(t, stateAttempting, a.state)

	a.begin()
	assert.False(t, a.fail(ErrTranscriptionTimeout))
	assert.Equal(t, stateFailed, a.state)
	assert.ErrorIs(t, a.err(), ErrTranscriptionTimeout)

	b := newAttempt(0)
	b.begin()
	b.succeed()
	assert.Equal(t, stateSucceeded, b.state)
	assert.Equal(t, "succeeded", b.state.String())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
