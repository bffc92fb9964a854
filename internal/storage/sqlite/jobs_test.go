package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/interview-scribe/pkg/logger"
)

func newTestStorage(t *testing.T) *JobStorage {
	t.Helper()
	s, err := NewJobStorage(":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	id, err := s.Create(ctx, &JobRecord{
		SessionID:   "abc",
		Kind:        KindAnalyze,
		FileName:    "interview.mp3",
		Fingerprint: "f00d",
		SizeBytes:   1234,
	})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	job, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, "abc", job.SessionID)
	assert.Equal(t, int64(1234), job.SizeBytes)
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)

	require.NoError(t, s.MarkRunning(ctx, id))
	job, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.True(t, job.UpdatedAt.After(job.CreatedAt))

	require.NoError(t, s.Complete(ctx, id, JobOutcome{
		Mode:            "windowed",
		DurationSeconds: 300.04,
		SegmentCount:    12,
		WindowsPlanned:  3,
		WindowsFailed:   1,
	}))
	job, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "windowed", job.Mode)
	assert.InDelta(t, 300.04, job.DurationSeconds, 1e-9)
	assert.Equal(t, 12, job.SegmentCount)
	assert.Equal(t, 3, job.WindowsPlanned)
	assert.Equal(t, 1, job.WindowsFailed)
	assert.Empty(t, job.Error)
}

func TestJobFail(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	id, err := s.Create(ctx, &JobRecord{SessionID: "s", Kind: KindDebug, FileName: "x.wav", Fingerprint: "aa"})
	require.NoError(t, err)

	require.NoError(t, s.Fail(ctx, id, JobOutcome{Mode: "windowed", WindowsPlanned: 3, WindowsFailed: 3},
		errors.New("no window could be transcribed")))

	job, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "no window could be transcribed", job.Error)
	assert.Equal(t, 3, job.WindowsFailed)
}

func TestUnknownJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.MarkRunning(ctx, "missing"), ErrJobNotFound)
	assert.ErrorIs(t, s.Complete(ctx, "missing", JobOutcome{}), ErrJobNotFound)
	assert.ErrorIs(t, s.Fail(ctx, "missing", JobOutcome{}, nil), ErrJobNotFound)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	var ids []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		id, err := s.Create(ctx, &JobRecord{SessionID: "s", Kind: KindAnalyze, FileName: name, Fingerprint: name})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	jobs, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[2].ID)

	page, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	empty, err := s.List(ctx, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindByFingerprint(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	first, err := s.Create(ctx, &JobRecord{SessionID: "s1", Kind: KindAnalyze, FileName: "a.mp3", Fingerprint: "same"})
	require.NoError(t, err)
	_, err = s.Create(ctx, &JobRecord{SessionID: "s2", Kind: KindAnalyze, FileName: "b.mp3", Fingerprint: "other"})
	require.NoError(t, err)
	second, err := s.Create(ctx, &JobRecord{SessionID: "s3", Kind: KindDebug, FileName: "a-copy.mp3", Fingerprint: "same"})
	require.NoError(t, err)

	jobs, err := s.FindByFingerprint(ctx, "same")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second, jobs[0].ID)
	assert.Equal(t, first, jobs[1].ID)
}

func TestFileBackedLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")

	s, err := NewJobStorage(path, logger.NewNop())
	require.NoError(t, err)
	id, err := s.Create(context.Background(), &JobRecord{SessionID: "s", Kind: KindAnalyze, FileName: "a", Fingerprint: "f"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewJobStorage(path, logger.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	job, err := reopened.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
}
