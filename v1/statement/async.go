package statement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Callback receives the outcome of an asynchronous execution. Exactly one of
// result and err is set: on failure result is the zero value.
type Callback[T any] func(result T, err error)

// Future is the pending outcome of one asynchronous execution. It resolves
// exactly once, after the callback (if any) has returned.
type Future[T any] struct {
	id   string
	op   string
	done chan struct{}

	value T
	err   error
}

func newFuture[T any](op string) *Future[T] {
	return &Future[T]{
		id:   uuid.NewString(),
		op:   op,
		done: make(chan struct{}),
	}
}

// ID identifies the submission in logs and diagnostics.
func (f *Future[T]) ID() string {
	return f.id
}

// Operation returns the name of the submitted operation.
func (f *Future[T]) Operation() string {
	return f.op
}

// Done is closed once the outcome is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the outcome is available or ctx is done. A ctx error does
// not cancel the execution.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ExecuteUpdateAsync runs ExecuteUpdate on the dispatcher. cb may be nil, in
// which case a failure goes to the diagnostic sink.
//
// ctx is handed to the execution; pass context.WithoutCancel(ctx) for work that
// should outlive the caller. If the dispatcher refuses the work the handle is
// released and an ErrDispatch error is returned; cb is not called.
func (h *Handle) ExecuteUpdateAsync(ctx context.Context, cb Callback[int64]) (*Future[int64], error) {
	if err := h.claimAsync(opExecuteUpdate, StateAutoCommit); err != nil {
		return nil, err
	}
	return dispatch(ctx, h, opExecuteUpdate, cb, h.executeUpdate)
}

// ExecuteQueryAsync runs ExecuteQuery on the dispatcher and hands the Snapshot
// to cb. A nil cb is rejected with ErrNilCallback before anything happens to
// the handle.
func (h *Handle) ExecuteQueryAsync(ctx context.Context, cb Callback[*Snapshot]) (*Future[*Snapshot], error) {
	if cb == nil {
		return nil, h.newError(ErrNilCallback, opExecuteQuery, nil)
	}
	if err := h.claimAsync(opExecuteQuery, StateAutoCommit); err != nil {
		return nil, err
	}
	return dispatch(ctx, h, opExecuteQuery, cb, h.executeQuery)
}

// ExecuteBatchAsync runs ExecuteBatch on the dispatcher. cb may be nil, in
// which case a failure goes to the diagnostic sink.
func (h *Handle) ExecuteBatchAsync(ctx context.Context, cb Callback[[]int64]) (*Future[[]int64], error) {
	if err := h.claimAsync(opExecuteBatch, StateAutoCommit, StateBatching, StateRolledBack); err != nil {
		return nil, err
	}
	return dispatch(ctx, h, opExecuteBatch, cb, h.executeBatch)
}

func (h *Handle) claimAsync(op string, allowed ...State) error {
	if h.closed.Load() {
		return h.newError(ErrHandleClosed, op, nil)
	}
	if h.opts.dispatcher == nil {
		return h.newError(ErrDispatch, op, ErrNoDispatcher)
	}
	return h.claim(op, allowed...)
}

func dispatch[T any](
	ctx context.Context,
	h *Handle,
	op string,
	cb Callback[T],
	exec func(context.Context) (T, error),
) (*Future[T], error) {
	f := newFuture[T](op)

	task := func(ctx context.Context) {
		value, err := protect(ctx, h, op, exec)
		f.resolve(ctx, h, value, err, cb)
	}

	if err := h.opts.dispatcher.Submit(ctx, task); err != nil {
		e := h.newError(ErrDispatch, op, err)
		e.Cleanup = h.release()
		h.state.Store(int32(StateClosed))
		h.observe(op, 0, 0, e)
		return nil, e
	}
	return f, nil
}

// protect turns a panic escaping exec into an ErrExecution error.
func protect[T any](ctx context.Context, h *Handle, op string, exec func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, h.newError(ErrExecution, op, fmt.Errorf("panic: %v", r))
		}
	}()
	return exec(ctx)
}

func (f *Future[T]) resolve(ctx context.Context, h *Handle, value T, err error, cb Callback[T]) {
	defer close(f.done)

	if err != nil {
		var zero T
		value = zero
	}
	f.value, f.err = value, err

	if cb == nil {
		if err != nil {
			h.report(ctx, f.id, f.op, err)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.opts.logger.Error("Recovered panic in statement callback", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"operation_id": f.id,
				"operation":    f.op,
				"sql":          h.sql,
			})
		}
	}()
	cb(value, err)
}

func (h *Handle) report(ctx context.Context, id, op string, err error) {
	d := Diagnostic{
		OperationID: id,
		Operation:   op,
		SQL:         h.sql,
		Err:         err,
		OccurredAt:  time.Now(),
	}
	if sinkErr := h.opts.sink.Report(context.WithoutCancel(ctx), d); sinkErr != nil {
		h.opts.logger.Error("Failed to report asynchronous statement failure", sinkErr, map[string]interface{}{
			"operation_id": id,
			"operation":    op,
			"cause":        err.Error(),
		})
	}
}
