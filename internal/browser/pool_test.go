package browser

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/engine/enginetest"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLaunchesOnce(t *testing.T) {
	eng := enginetest.New()
	pool := NewPool(eng, "")
	ctx := context.Background()

	first, err := pool.Acquire(ctx, engine.Headless)
	require.NoError(t, err)
	assert.True(t, first.IsConnected())

	second, err := pool.Acquire(ctx, engine.Headless)
	require.NoError(t, err)
	assert.True(t, second.IsConnected())

	assert.Same(t, first, second)
	assert.Equal(t, 1, eng.Launches(engine.Headless))
	assert.Equal(t, 0, eng.Launches(engine.Headed))
}

func TestAcquireModesAreIndependent(t *testing.T) {
	eng := enginetest.New()
	pool := NewPool(eng, "")
	ctx := context.Background()

	headless, err := pool.Acquire(ctx, engine.Headless)
	require.NoError(t, err)
	headed, err := pool.Acquire(ctx, engine.Headed)
	require.NoError(t, err)

	assert.NotSame(t, headless, headed)
	assert.Equal(t, 1, eng.Launches(engine.Headless))
	assert.Equal(t, 1, eng.Launches(engine.Headed))
}

func TestAcquireUsesFixedArgs(t *testing.T) {
	eng := enginetest.New()
	pool := NewPool(eng, "")

	_, err := pool.Acquire(context.Background(), engine.Headed)
	require.NoError(t, err)
	_, err = pool.Acquire(context.Background(), engine.Headless)
	require.NoError(t, err)

	assert.Equal(t, eng.LaunchArgs(0), eng.LaunchArgs(1))
	assert.Contains(t, eng.LaunchArgs(0), "--disable-blink-features=AutomationControlled")
}

func TestAcquireReplacesDisconnected(t *testing.T) {
	eng := enginetest.New()
	pool := NewPool(eng, "")
	ctx := context.Background()

	first, err := pool.Acquire(ctx, engine.Headless)
	require.NoError(t, err)
	first.(*enginetest.Browser).Crash()

	second, err := pool.Acquire(ctx, engine.Headless)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, second.IsConnected())
	assert.True(t, first.(*enginetest.Browser).Closed(), "stale process is closed before relaunch")
	assert.Equal(t, 2, eng.Launches(engine.Headless))
}

func TestAcquireConcurrentSharesLaunch(t *testing.T) {
	eng := enginetest.New()
	pool := NewPool(eng, "")

	var wg sync.WaitGroup
	results := make([]engine.Browser, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := pool.Acquire(context.Background(), engine.Headless)
			if err == nil {
				results[i] = b
			}
		}(i)
	}
	wg.Wait()

	for _, b := range results {
		require.NotNil(t, b)
		assert.Same(t, results[0], b)
	}
	assert.Equal(t, 1, eng.Launches(engine.Headless))
}

func TestAcquireLaunchFailure(t *testing.T) {
	eng := enginetest.New()
	eng.LaunchErr = errors.New("executable doesn't exist")
	pool := NewPool(eng, "")

	_, err := pool.Acquire(context.Background(), engine.Headless)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.LaunchFailure))

	// no automatic retry, the next call tries again
	eng.LaunchErr = nil
	b, err := pool.Acquire(context.Background(), engine.Headless)
	require.NoError(t, err)
	assert.True(t, b.IsConnected())
}

func TestStatusAndShutdown(t *testing.T) {
	eng := enginetest.New()
	pool := NewPool(eng, "")

	status := pool.Status()
	require.Len(t, status, 2)
	assert.Equal(t, StatusStopped, status[0].Status)

	_, err := pool.Acquire(context.Background(), engine.Headless)
	require.NoError(t, err)

	status = pool.Status()
	assert.Equal(t, engine.Headless, status[0].Mode)
	assert.Equal(t, StatusRunning, status[0].Status)
	assert.True(t, status[0].Connected)
	assert.Equal(t, 1, status[0].Launches)
	assert.Equal(t, StatusStopped, status[1].Status)

	require.NoError(t, pool.Shutdown())
	for _, b := range eng.Launched() {
		assert.True(t, b.Closed())
	}
	assert.Equal(t, StatusStopped, pool.Status()[0].Status)
}
