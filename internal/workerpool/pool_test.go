package workerpool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTasks(t *testing.T) {
	p := New(Config{Name: "test", Workers: 2, QueueSize: 8})
	defer p.Stop(5 * time.Second)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("task-%d", i)
		wg.Add(1)
		err := p.Submit(Task{ID: id, Fn: func(context.Context) error {
			defer wg.Done()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			return nil
		}})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Len(t, seen, 6)
	stats := p.Stats()
	assert.Equal(t, uint64(6), stats.Submitted)
	assert.Equal(t, uint64(6), stats.Completed)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	p := New(Config{Name: "full", Workers: 1, QueueSize: 1})
	defer p.Stop(5 * time.Second)

	release := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}

	// First task occupies the worker, second fills the queue.
	require.NoError(t, p.Submit(Task{ID: "a", Fn: block}))
	require.Eventually(t, func() bool { return p.Stats().Active == 1 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit(Task{ID: "b", Fn: block}))

	err := p.Submit(Task{ID: "c", Fn: block})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
	assert.Equal(t, uint64(1), p.Stats().Rejected)

	close(release)
}

func TestSubmitWaitHonorsContext(t *testing.T) {
	p := New(Config{Name: "wait", Workers: 1, QueueSize: 1})
	defer p.Stop(5 * time.Second)

	release := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, p.Submit(Task{ID: "a", Fn: block}))
	require.Eventually(t, func() bool { return p.Stats().Active == 1 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit(Task{ID: "b", Fn: block}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.SubmitWait(ctx, Task{ID: "c", Fn: block})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestPanicCountsAsFailure(t *testing.T) {
	p := New(Config{Name: "panic", Workers: 1, QueueSize: 4})
	defer p.Stop(5 * time.Second)

	done := make(chan struct{})
	require.NoError(t, p.Submit(Task{ID: "boom", Fn: func(context.Context) error {
		defer close(done)
		panic("boom")
	}}))
	<-done

	assert.Eventually(t, func() bool { return p.Stats().Failed == 1 },
		2*time.Second, 5*time.Millisecond)

	// The worker survives the panic and keeps serving.
	var ran sync.WaitGroup
	ran.Add(1)
	require.NoError(t, p.Submit(Task{ID: "after", Fn: func(context.Context) error {
		ran.Done()
		return nil
	}}))
	ran.Wait()
}

func TestSubmitAfterStop(t *testing.T) {
	p := New(Config{Name: "stopped", Workers: 1, QueueSize: 1})
	require.NoError(t, p.Stop(5*time.Second))

	err := p.Submit(Task{ID: "late", Fn: func(context.Context) error { return nil }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}

func TestStopIsIdempotent(t *testing.T) {
	p := New(Config{Name: "twice", Workers: 1, QueueSize: 1})
	require.NoError(t, p.Stop(5*time.Second))
	require.NoError(t, p.Stop(5*time.Second))
}
