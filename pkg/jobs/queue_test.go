package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestQueueProcessesJobs(t *testing.T) {
	var handled int64
	q := NewQueue("test", func(_ context.Context, job Job) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{Type: "noop"}))
	}
	waitFor(t, func() bool { return atomic.LoadInt64(&handled) == 5 })
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int64
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if atomic.AddInt64(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "flaky"}))
	waitFor(t, func() bool { return atomic.LoadInt64(&attempts) == 3 })
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{Type: "early"}))
}

func TestQueueStopDrainsWorkers(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 3})
	q.Start(context.Background())
	q.Stop()

	// Enqueue after stop fails because the context is cancelled.
	require.Error(t, q.Enqueue(Job{Type: "late"}))
}

func TestQueueEnqueueAfterStopAlwaysRefused(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 1, BufferSize: 64})
	q.Start(context.Background())
	q.Stop()

	// The buffer has room, so a send could still succeed if shutdown
	// were not checked first. Every attempt must be refused.
	for i := 0; i < 50; i++ {
		require.Error(t, q.Enqueue(Job{Type: "late"}))
	}
}
