package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("exports", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "1"})
	assert.True(t, errors.Is(err, ErrNotStarted))
}

func TestQueueProcessesJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(3)
	q := NewQueue("exports", func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		wg.Done()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	wg.Wait()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}

func TestQueueRetriesUntilLimit(t *testing.T) {
	g := gomega.NewWithT(t)
	var (
		calls    int32
		attempts sync.Map
	)
	q := NewQueue("exports", func(_ context.Context, job Job) error {
		attempts.Store(job.Attempt, true)
		if atomic.AddInt32(&calls, 1) == 3 {
			return nil
		}
		return errors.New("render failed")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	g.Eventually(func() int32 { return atomic.LoadInt32(&calls) }, 2*time.Second, 5*time.Millisecond).Should(gomega.Equal(int32(3)))
	_, lastAttempt := attempts.Load(2)
	g.Expect(lastAttempt).To(gomega.BeTrue())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	g := gomega.NewWithT(t)
	var calls int32
	q := NewQueue("exports", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("render failed")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	g.Eventually(func() int32 { return atomic.LoadInt32(&calls) }, 2*time.Second, 5*time.Millisecond).Should(gomega.Equal(int32(2)))
	g.Consistently(func() int32 { return atomic.LoadInt32(&calls) }, 50*time.Millisecond, 5*time.Millisecond).Should(gomega.Equal(int32(2)))
}

func TestQueueReportsGiveUp(t *testing.T) {
	g := gomega.NewWithT(t)
	var (
		mu      sync.Mutex
		dropped []Job
		reasons []error
	)
	q := NewQueue("exports", func(context.Context, Job) error {
		return errors.New("render failed")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnGiveUp: func(job Job, err error) {
		mu.Lock()
		dropped = append(dropped, job)
		reasons = append(reasons, err)
		mu.Unlock()
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	g.Eventually(func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(dropped)
	}, 2*time.Second, 5*time.Millisecond).Should(gomega.Equal(1))

	mu.Lock()
	defer mu.Unlock()
	g.Expect(dropped[0].ID).To(gomega.Equal("a"))
	g.Expect(dropped[0].Attempt).To(gomega.Equal(2))
	g.Expect(reasons[0]).To(gomega.MatchError("render failed"))
}

func TestQueueReportsGiveUpWhenRequeueFails(t *testing.T) {
	g := gomega.NewWithT(t)
	release := make(chan struct{})
	gaveUp := make(chan error, 1)
	q := NewQueue("exports", func(ctx context.Context, job Job) error {
		if job.ID == "flaky" {
			return errors.New("render failed")
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1, MaxRetries: 3, RetryDelay: 100 * time.Millisecond, OnGiveUp: func(_ Job, err error) {
		gaveUp <- err
	}})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	g.Eventually(q.Pending, time.Second, time.Millisecond).Should(gomega.Equal(0))
	require.NoError(t, q.Enqueue(Job{ID: "blocker"}))
	g.Eventually(q.Pending, time.Second, time.Millisecond).Should(gomega.Equal(0))
	require.NoError(t, q.Enqueue(Job{ID: "filler"}))

	var err error
	g.Eventually(gaveUp, 2*time.Second).Should(gomega.Receive(&err))
	g.Expect(errors.Is(err, ErrFull)).To(gomega.BeTrue())
}

func TestQueueRecoversFromPanics(t *testing.T) {
	g := gomega.NewWithT(t)
	var calls int32
	q := NewQueue("exports", func(context.Context, Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return nil
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	g.Eventually(func() int32 { return atomic.LoadInt32(&calls) }, 2*time.Second, 5*time.Millisecond).Should(gomega.Equal(int32(2)))
}

func TestQueueFullAndStopped(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("exports", func(ctx context.Context, _ Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "buffered"}))
	assert.True(t, errors.Is(q.Enqueue(Job{ID: "overflow"}), ErrFull))

	close(block)
	q.Stop()
	assert.True(t, errors.Is(q.Enqueue(Job{ID: "late"}), ErrStopped))
}
