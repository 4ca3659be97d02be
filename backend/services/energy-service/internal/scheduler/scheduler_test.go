package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEveryRunsRepeatedly(t *testing.T) {
	s := New(time.UTC, time.Second, zap.NewNop())
	defer s.Stop()

	var runs atomic.Int32
	_, err := s.Every(20*time.Millisecond, "refresh", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestFailingJobKeepsRunning(t *testing.T) {
	s := New(time.UTC, time.Second, zap.NewNop())
	defer s.Stop()

	var runs atomic.Int32
	_, err := s.Every(20*time.Millisecond, "flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("db down")
	})
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestJobContextHasDeadline(t *testing.T) {
	s := New(time.UTC, 50*time.Millisecond, zap.NewNop())
	defer s.Stop()

	seen := make(chan bool, 1)
	_, err := s.Every(time.Hour, "deadline", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		select {
		case seen <- ok:
		default:
		}
		return nil
	})
	require.NoError(t, err)
	s.Start()

	select {
	case ok := <-seen:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestDailySchedulesAtWallClock(t *testing.T) {
	s := New(time.UTC, time.Second, zap.NewNop())
	defer s.Stop()

	job, err := s.Daily("23:55", "next-partition", func(context.Context) error { return nil })
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return !job.NextRun().IsZero() }, time.Second, 10*time.Millisecond)
	next := job.NextRun().UTC()
	assert.Equal(t, 23, next.Hour())
	assert.Equal(t, 55, next.Minute())
}

func TestDailyRejectsBadTime(t *testing.T) {
	s := New(time.UTC, time.Second, zap.NewNop())
	defer s.Stop()

	_, err := s.Daily("25:99", "bad", func(context.Context) error { return nil })
	assert.Error(t, err)
}
