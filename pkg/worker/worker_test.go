package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studykeep/studykeep/pkg/config"
)

type countingFlusher struct {
	count atomic.Int64
}

func (f *countingFlusher) FlushPending(ctx context.Context) error {
	f.count.Add(1)
	return nil
}

func (f *countingFlusher) waitFor(t *testing.T, n int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.count.Load() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, f.count.Load(), n)
}

func TestNotifyTriggersFlush(t *testing.T) {
	t.Parallel()

	points := &countingFlusher{}
	studyTime := &countingFlusher{}

	w := New(&config.Config{WorkerProcesses: 1}, points, studyTime)
	w.Start()
	defer w.Shutdown()

	w.NotifyPoints()
	points.waitFor(t, 1)

	w.NotifyStudyTime()
	studyTime.waitFor(t, 1)
}

func TestNotifyNeverBlocks(t *testing.T) {
	t.Parallel()

	points := &countingFlusher{}
	studyTime := &countingFlusher{}

	w := New(&config.Config{WorkerProcesses: 1}, points, studyTime)

	// Not started: repeated notifications coalesce instead of blocking.
	for i := 0; i < 10; i++ {
		w.NotifyPoints()
	}

	w.Start()
	defer w.Shutdown()

	points.waitFor(t, 1)
	assert.Less(t, points.count.Load(), int64(10))
}

type failingFlusher struct {
	countingFlusher
}

func (f *failingFlusher) FlushPending(ctx context.Context) error {
	f.count.Add(1)
	return context.DeadlineExceeded
}

func TestFailedFlushWaitsForNextNotification(t *testing.T) {
	t.Parallel()

	points := &failingFlusher{}
	studyTime := &countingFlusher{}

	w := New(&config.Config{WorkerProcesses: 1}, points, studyTime)
	w.Start()
	defer w.Shutdown()

	w.NotifyPoints()
	points.waitFor(t, 1)

	// No timer retries the failure; only another notification does.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), points.count.Load())

	w.NotifyPoints()
	points.waitFor(t, 2)
}

func TestShutdownStopsWorker(t *testing.T) {
	t.Parallel()

	points := &countingFlusher{}
	studyTime := &countingFlusher{}

	w := New(&config.Config{WorkerProcesses: 1}, points, studyTime)
	w.Start()
	w.Shutdown()

	after := points.count.Load()
	w.NotifyPoints()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, points.count.Load())
}
