package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := New("test", Options{Workers: 3, QueueSize: 16})

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit("inc", func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(context.Background()))
	require.EqualValues(t, 10, count.Load())
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	pool := New("full", Options{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit("block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, pool.Submit("queued", func(ctx context.Context) error { return nil }))
	err := pool.Submit("overflow", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	pool := New("closed", Options{Workers: 1, QueueSize: 1})
	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.Submit("late", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPoolClosed)

	// 重复关闭不应 panic
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolRecoversFromPanicsAndErrors(t *testing.T) {
	pool := New("panic", Options{Workers: 1, QueueSize: 4})

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit("boom", func(ctx context.Context) error {
		panic("boom")
	}))
	require.NoError(t, pool.Submit("fail", func(ctx context.Context) error {
		return errors.New("failed")
	}))
	require.NoError(t, pool.Submit("after", func(ctx context.Context) error {
		wg.Done()
		return nil
	}))

	wg.Wait()
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolShutdownCancelsOnDeadline(t *testing.T) {
	pool := New("slow", Options{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	require.NoError(t, pool.Submit("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPoolAppliesTaskTimeout(t *testing.T) {
	pool := New("timeout", Options{Workers: 1, QueueSize: 1, TaskTimeout: 10 * time.Millisecond})

	result := make(chan error, 1)
	require.NoError(t, pool.Submit("wait", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return nil
	}))

	select {
	case err := <-result:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled by timeout")
	}
	require.NoError(t, pool.Shutdown(context.Background()))
}
