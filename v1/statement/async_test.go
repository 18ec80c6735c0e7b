package statement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Aleph-Alpha/sqlexec/v1/workerpool"
)

func newPool(t *testing.T, cfg workerpool.Config) *workerpool.Pool {
	t.Helper()
	pool := workerpool.New(cfg)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	return pool
}

func TestExecuteUpdateAsyncDeliversResult(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	pool := newPool(t, workerpool.Config{})

	h, err := New(ctx, db, "INSERT INTO t(x) VALUES (?)", WithDispatcher(pool))
	require.NoError(t, err)
	require.NoError(t, h.SetParameter(1, 42))

	var got int64
	var gotErr error
	f, err := h.ExecuteUpdateAsync(ctx, func(n int64, err error) {
		got, gotErr = n, err
	})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID())
	assert.Equal(t, "executeUpdate", f.Operation())

	n, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), got, "callback runs before the future resolves")
	assert.NoError(t, gotErr)
	assert.Equal(t, 1, countRows(t, db, "t"))

	_, err = h.ExecuteUpdateAsync(ctx, nil)
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func TestExecuteQueryAsync(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	_, err := db.Exec("INSERT INTO t(x) VALUES (7)")
	require.NoError(t, err)
	pool := newPool(t, workerpool.Config{Size: 2})

	h, err := New(ctx, db, "SELECT x FROM t", WithDispatcher(pool))
	require.NoError(t, err)

	_, err = h.ExecuteQueryAsync(ctx, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
	assert.Equal(t, StateAutoCommit, h.State(), "a missing callback leaves the handle untouched")

	results := make(chan *Snapshot, 1)
	f, err := h.ExecuteQueryAsync(ctx, func(snap *Snapshot, err error) {
		assert.NoError(t, err)
		results <- snap
	})
	require.NoError(t, err)

	<-f.Done()
	snap := <-results
	require.Equal(t, 1, snap.Len())
	v, _ := snap.Value(0, "x")
	assert.Equal(t, int64(7), v)
}

func TestExecuteBatchAsyncDuplicateKey(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	pool := newPool(t, workerpool.Config{})

	h, err := New(ctx, db, "INSERT INTO u(x) VALUES (?)", WithDispatcher(pool))
	require.NoError(t, err)
	for _, v := range []int{1, 1} {
		require.NoError(t, h.SetParameter(1, v))
		require.NoError(t, h.AddBatch())
	}

	done := make(chan error, 1)
	_, err = h.ExecuteBatchAsync(ctx, func(counts []int64, err error) {
		assert.Nil(t, counts)
		done <- err
	})
	require.NoError(t, err)

	cbErr := <-done
	assert.ErrorIs(t, cbErr, ErrExecution)
	assert.Equal(t, 0, countRows(t, db, "u"), "zero rows committed")
}

func TestAsyncCallbacksExactlyOnce(t *testing.T) {
	const submissions = 1000

	ctx := context.Background()
	db := openSQLite(t)
	db.SetMaxOpenConns(20)
	pool := newPool(t, workerpool.Config{Size: 10})

	var calls, successes, failures atomic.Int64
	var badShape atomic.Int64
	var wg sync.WaitGroup
	wg.Add(submissions)

	var submitWG sync.WaitGroup
	for i := 0; i < submissions; i++ {
		submitWG.Add(1)
		go func(i int) {
			defer submitWG.Done()
			h, err := New(ctx, db, "INSERT INTO t(x) VALUES (?)", WithDispatcher(pool))
			if !assert.NoError(t, err) {
				wg.Done()
				return
			}
			_ = h.SetParameter(1, i)
			_, err = h.ExecuteUpdateAsync(ctx, func(n int64, err error) {
				defer wg.Done()
				calls.Add(1)
				switch {
				case err == nil && n == 1:
					successes.Add(1)
				case err != nil && n == 0:
					failures.Add(1)
				default:
					badShape.Add(1)
				}
			})
			if !assert.NoError(t, err) {
				wg.Done()
			}
		}(i)
	}
	submitWG.Wait()

	waitTimeout(t, &wg, 30*time.Second)
	assert.Equal(t, int64(submissions), calls.Load())
	assert.Zero(t, badShape.Load())
	assert.Equal(t, int64(submissions), successes.Load()+failures.Load())
	assert.Equal(t, int(successes.Load()), countRows(t, db, "t"))
}

func TestAsyncPanicReachesCallback(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t, workerpool.Config{})
	mock, db := newMock(t)
	expectPrepare(mock).WillBeClosed()

	h, err := New(ctx, db, insertSQL, WithDispatcher(pool))
	require.NoError(t, err)
	require.NoError(t, h.claimAsync(opExecuteUpdate, StateAutoCommit))

	errs := make(chan error, 2)
	f, err := dispatch(ctx, h, opExecuteUpdate, func(n int64, err error) {
		assert.Zero(t, n)
		errs <- err
	}, func(ctx context.Context) (int64, error) {
		return settle(ctx, h, opExecuteUpdate, StateClosed, StateClosed,
			func(n int64) int64 { return n },
			func(context.Context) (int64, error) { panic("driver exploded") })
	})
	require.NoError(t, err)

	_, waitErr := f.Wait(ctx)
	cbErr := <-errs
	assert.ErrorIs(t, cbErr, ErrExecution)
	assert.ErrorContains(t, cbErr, "driver exploded")
	assert.Equal(t, cbErr, waitErr)
	assert.Equal(t, StateClosed, h.State(), "resources are released before the panic propagates")
	assert.Empty(t, errs, "callback invoked exactly once")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleRepanicsAfterCleanup(t *testing.T) {
	mock, db := newMock(t)
	expectPrepare(mock).WillBeClosed()

	h, err := New(context.Background(), db, insertSQL)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = settle(context.Background(), h, opExecuteUpdate, StateClosed, StateClosed,
			func(n int64) int64 { return n },
			func(context.Context) (int64, error) { panic("boom") })
	})
	assert.Equal(t, StateClosed, h.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallbackPanicIsRecoveredAndLogged(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	pool := newPool(t, workerpool.Config{})

	ctrl := gomock.NewController(t)
	log := NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error("Recovered panic in statement callback", gomock.Any(), gomock.Any()).Times(1)

	h, err := New(ctx, db, "INSERT INTO t(x) VALUES (?)", WithDispatcher(pool), WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, h.SetParameter(1, 1))

	f, err := h.ExecuteUpdateAsync(ctx, func(int64, error) {
		panic("callback exploded")
	})
	require.NoError(t, err)

	n, err := f.Wait(ctx)
	require.NoError(t, err, "the future still resolves with the execution outcome")
	assert.Equal(t, int64(1), n)
}

func TestFireAndForgetFailureGoesToSink(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	pool := newPool(t, workerpool.Config{})
	sink := &recordingSink{}

	h, err := New(ctx, db, "INSERT INTO u(x) VALUES (?)", WithDispatcher(pool), WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, h.SetParameter(1, nil))

	f, err := h.ExecuteUpdateAsync(ctx, nil)
	require.NoError(t, err)
	_, err = f.Wait(ctx)
	require.ErrorIs(t, err, ErrExecution)

	diags := sink.reported()
	require.Len(t, diags, 1)
	assert.Equal(t, f.ID(), diags[0].OperationID)
	assert.Equal(t, "executeUpdate", diags[0].Operation)
	assert.Equal(t, "INSERT INTO u(x) VALUES (?)", diags[0].SQL)
	assert.ErrorIs(t, diags[0].Err, ErrExecution)

	// success without a callback reports nothing
	h, err = New(ctx, db, "INSERT INTO u(x) VALUES (?)", WithDispatcher(pool), WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, h.SetParameter(1, 1))
	f, err = h.ExecuteUpdateAsync(ctx, nil)
	require.NoError(t, err)
	_, err = f.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, sink.reported(), 1)
}

func TestSinkFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	pool := newPool(t, workerpool.Config{})

	ctrl := gomock.NewController(t)
	log := NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error("Failed to report asynchronous statement failure", gomock.Any(), gomock.Any()).Times(1)

	sink := &recordingSink{err: errors.New("broker down")}
	h, err := New(ctx, db, "INSERT INTO u(x) VALUES (?)", WithDispatcher(pool), WithSink(sink), WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, h.SetParameter(1, nil))
	require.NoError(t, h.AddBatch())

	f, err := h.ExecuteBatchAsync(ctx, nil)
	require.NoError(t, err)
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, ErrExecution)
	assert.Len(t, sink.reported(), 1)
}

func TestAsyncDispatchFailures(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	t.Run("no dispatcher", func(t *testing.T) {
		h, err := New(ctx, db, "INSERT INTO t(x) VALUES (?)")
		require.NoError(t, err)
		defer h.Close()

		_, err = h.ExecuteUpdateAsync(ctx, nil)
		assert.ErrorIs(t, err, ErrDispatch)
		assert.ErrorIs(t, err, ErrNoDispatcher)
		assert.Equal(t, StateAutoCommit, h.State())
	})

	t.Run("pool shut down", func(t *testing.T) {
		pool := workerpool.New(workerpool.Config{})
		require.NoError(t, pool.Shutdown(ctx))

		h, err := New(ctx, db, "INSERT INTO t(x) VALUES (?)", WithDispatcher(pool))
		require.NoError(t, err)
		require.NoError(t, h.SetParameter(1, 1))

		called := false
		_, err = h.ExecuteUpdateAsync(ctx, func(int64, error) { called = true })
		assert.ErrorIs(t, err, ErrDispatch)
		assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
		assert.False(t, called)
		assert.Equal(t, StateClosed, h.State(), "the handle is released")
		assert.Equal(t, 0, db.Stats().InUse)
	})

	t.Run("pool saturated", func(t *testing.T) {
		pool := newPool(t, workerpool.Config{Size: 1, Policy: workerpool.PolicyReject})
		release := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, pool.Submit(ctx, func(context.Context) {
			close(started)
			<-release
		}))
		<-started
		defer close(release)

		h, err := New(ctx, db, "INSERT INTO t(x) VALUES (?)", WithDispatcher(pool))
		require.NoError(t, err)
		require.NoError(t, h.SetParameter(1, 1))
		require.NoError(t, h.AddBatch())

		_, err = h.ExecuteBatchAsync(ctx, nil)
		assert.ErrorIs(t, err, ErrDispatch)
		assert.ErrorIs(t, err, workerpool.ErrPoolSaturated)
		assert.Equal(t, 0, countRows(t, db, "t"))
	})
}

func TestFutureWaitHonoursContext(t *testing.T) {
	f := newFuture[int64]("executeUpdate")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	sink := MultiSink{a, nil, b}

	err := sink.Report(context.Background(), Diagnostic{OperationID: "1"})
	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.reported(), 1)
	assert.Len(t, b.reported(), 1)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for callbacks")
	}
}
