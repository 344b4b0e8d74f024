package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsTask(t *testing.T) {
	e := New()
	defer func() { _ = e.Shutdown(time.Second) }()

	var ran atomic.Bool
	handle, err := e.Submit(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))
	assert.True(t, ran.Load())
}

func TestExecutorPropagatesError(t *testing.T) {
	e := New()
	defer func() { _ = e.Shutdown(time.Second) }()

	handle, err := e.Submit(func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	err = handle.Wait(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestExecutorRecoversPanic(t *testing.T) {
	e := New()
	defer func() { _ = e.Shutdown(time.Second) }()

	handle, err := e.Submit(func(ctx context.Context) error {
		panic("bad task")
	})
	require.NoError(t, err)
	err = handle.Wait(context.Background())
	assert.ErrorContains(t, err, "panic")
}

func TestExecutorConcurrentTasks(t *testing.T) {
	e := New()
	defer func() { _ = e.Shutdown(time.Second) }()

	var count atomic.Int32
	handles := make([]*Handle, 0, 10)
	for i := 0; i < 10; i++ {
		h, err := e.Submit(func(ctx context.Context) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		require.NoError(t, h.Wait(context.Background()))
	}
	assert.Equal(t, int32(10), count.Load())
}

func TestExecutorStatsAndShutdown(t *testing.T) {
	e := New()

	assert.False(t, e.Stats().Running)

	release := make(chan struct{})
	handle, err := e.Submit(func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	stats := e.Stats()
	assert.True(t, stats.Running)
	assert.True(t, stats.LoopAlive)

	close(release)
	require.NoError(t, handle.Wait(context.Background()))
	require.NoError(t, e.Shutdown(time.Second))

	stats = e.Stats()
	assert.False(t, stats.Running)
	assert.False(t, stats.LoopAlive)
}

func TestExecutorShutdownTimeout(t *testing.T) {
	e := New()

	_, err := e.Submit(func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	err = e.Shutdown(10 * time.Millisecond)
	assert.ErrorContains(t, err, "timed out")
}

func TestExecutorRestartsAfterShutdown(t *testing.T) {
	e := New()
	require.NoError(t, e.Shutdown(time.Second))

	handle, err := e.Submit(func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))
	_ = e.Shutdown(time.Second)
}
