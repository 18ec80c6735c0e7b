package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []observability.OperationContext
}

func (r *recordingObserver) ObserveOperation(ctx observability.OperationContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, ctx)
}

func (r *recordingObserver) count(operation string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.ops {
		if op.Operation == operation {
			n++
		}
	}
	return n
}

func TestNewDefaults(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, DefaultSize, p.Size())
	assert.Equal(t, PolicyBlock, p.cfg.Policy)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSubmitRunsEveryTask(t *testing.T) {
	p := New(Config{Size: 4})
	var ran atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(100), ran.Load())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestConcurrencyIsBounded(t *testing.T) {
	p := New(Config{Size: 3})
	var current, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(3))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrySubmitSaturated(t *testing.T) {
	p := New(Config{Size: 1})
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	err := p.TrySubmit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
	assert.True(t, IsDispatchError(err))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestRejectPolicy(t *testing.T) {
	p := New(Config{Size: 1, Policy: PolicyReject})
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	assert.ErrorIs(t, p.Submit(context.Background(), func(ctx context.Context) {}), ErrPoolSaturated)
	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSubmitWaitRespectsContext(t *testing.T) {
	p := New(Config{Size: 1})
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(ctx context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdownReleasesWaitingSubmitters(t *testing.T) {
	p := New(Config{Size: 1})
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Submit(context.Background(), func(ctx context.Context) {})
	}()

	shutdownErr := make(chan error, 1)
	go func() {
		// Give the second submitter time to start waiting.
		time.Sleep(20 * time.Millisecond)
		shutdownErr <- p.Shutdown(context.Background())
	}()

	assert.ErrorIs(t, <-errCh, ErrPoolClosed)
	close(release)
	require.NoError(t, <-shutdownErr)
}

func TestShutdownWaitsForRunningTasks(t *testing.T) {
	p := New(Config{Size: 2})
	var finished atomic.Bool

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, finished.Load())

	// Idempotent.
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit(context.Background(), func(ctx context.Context) {}), ErrPoolClosed)
}

func TestShutdownDeadline(t *testing.T) {
	p := New(Config{Size: 1})
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		<-release
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPanickingTaskIsRecovered(t *testing.T) {
	obs := &recordingObserver{}
	p := New(Config{Size: 1}).WithObserver(obs)

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Equal(t, 1, obs.count("run"))
	obs.mu.Lock()
	defer obs.mu.Unlock()
	for _, op := range obs.ops {
		if op.Operation == "run" {
			assert.Error(t, op.Error)
		}
	}
}

func TestNilTask(t *testing.T) {
	p := New(Config{Size: 1})
	assert.Error(t, p.Submit(context.Background(), nil))
	require.NoError(t, p.Shutdown(context.Background()))
}
