package statement

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Aleph-Alpha/sqlexec/v1/logger"
	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

const (
	opPrepare       = "prepare"
	opSetParameter  = "setParameter"
	opAddBatch      = "addBatch"
	opExecuteUpdate = "executeUpdate"
	opExecuteQuery  = "executeQuery"
	opExecuteBatch  = "executeBatch"
	opRollback      = "rollback"
	opClose         = "close"
)

type binding struct {
	value any
	set   bool
}

// Handle is one prepared statement on one exclusively borrowed connection.
//
// A Handle is single use: ExecuteUpdate, ExecuteQuery and ExecuteBatch (and
// their Async variants) release the statement and the connection on every
// path, after which every call fails with ErrHandleClosed. A handle that is
// never executed must be released with Close.
//
// The first AddBatch switches the handle into manual transaction mode for the
// rest of its life. The entries run inside one transaction at ExecuteBatch,
// which commits on success and rolls back explicitly on failure.
//
// A Handle must not be used from two goroutines at once. Only the terminal
// transition is guarded, so that a racing second execution fails with
// ErrHandleClosed instead of closing the connection twice.
type Handle struct {
	sql string

	// placeholders is the parameter count. It comes from the driver when exact
	// is set; otherwise it is an estimate from the SQL text and only the driver's
	// argument check at execution is authoritative.
	placeholders int
	exact        bool

	conn *sql.Conn
	stmt *sql.Stmt

	params []binding
	batch  [][]any

	state  atomic.Int32
	closed atomic.Bool

	opts options
}

// New borrows a connection from source and prepares sqlText on it.
//
// Any failure is an ErrPreparation error; a connection borrowed before a failed
// prepare is given back before New returns.
func New(ctx context.Context, source ConnSource, sqlText string, opts ...Option) (*Handle, error) {
	h := &Handle{
		sql:  sqlText,
		opts: options{logger: logger.NewNop()},
	}
	for _, opt := range opts {
		opt(&h.opts)
	}
	if h.opts.sink == nil {
		h.opts.sink = NewLogSink(h.opts.logger)
	}

	start := time.Now()
	conn, err := source.Conn(ctx)
	if err != nil {
		e := h.newError(ErrPreparation, opPrepare, fmt.Errorf("acquiring connection: %w", err))
		h.observe(opPrepare, time.Since(start), 0, e)
		return nil, e
	}

	stmt, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		e := h.newError(ErrPreparation, opPrepare, err)
		e.Cleanup = conn.Close()
		h.observe(opPrepare, time.Since(start), 0, e)
		return nil, e
	}

	h.conn, h.stmt = conn, stmt
	h.placeholders, h.exact = h.parameterCount(ctx)
	h.params = make([]binding, h.placeholders)

	h.observe(opPrepare, time.Since(start), 0, nil)
	return h, nil
}

// parameterCount asks the driver how many parameters the statement takes by
// preparing it once more on the raw driver connection. Drivers that report -1,
// or fail that second prepare, fall back to counting markers in the SQL text.
func (h *Handle) parameterCount(ctx context.Context) (int, bool) {
	n := -1
	err := h.conn.Raw(func(driverConn any) error {
		var (
			ds  driver.Stmt
			err error
		)
		switch c := driverConn.(type) {
		case driver.ConnPrepareContext:
			ds, err = c.PrepareContext(ctx, h.sql)
		case driver.Conn:
			ds, err = c.Prepare(h.sql)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		n = ds.NumInput()
		return ds.Close()
	})
	if err != nil {
		h.opts.logger.Debug("Driver parameter count unavailable", err, map[string]interface{}{
			"sql": h.sql,
		})
	}
	if err != nil || n < 0 {
		return countPlaceholders(h.sql), false
	}
	return n, true
}

// SQL returns the statement text.
func (h *Handle) SQL() string {
	return h.sql
}

// State returns the current transaction state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// SetParameter binds value to the 1-based placeholder index. Binding an index
// again overwrites the earlier value.
//
// The value is checked by the driver right away. An out-of-range index or a
// rejected value returns an ErrBinding error and leaves all bindings as they were.
// When the driver cannot report its parameter count, any index from 1 up is
// accepted and the driver rejects a wrong argument count at execution.
func (h *Handle) SetParameter(index int, value any) error {
	if h.closed.Load() {
		return h.newError(ErrHandleClosed, opSetParameter, nil)
	}
	if index < 1 || (h.exact && index > h.placeholders) {
		return h.newError(ErrBinding, opSetParameter,
			fmt.Errorf("index %d out of range [1,%d]", index, h.placeholders))
	}
	if err := h.checkValue(index, value); err != nil {
		return h.newError(ErrBinding, opSetParameter, fmt.Errorf("parameter %d: %w", index, err))
	}

	if index > len(h.params) {
		h.params = append(h.params, make([]binding, index-len(h.params))...)
	}
	h.params[index-1] = binding{value: value, set: true}
	return nil
}

// checkValue runs the driver's own argument check, falling back to the default
// database/sql conversion for drivers without one.
func (h *Handle) checkValue(index int, value any) error {
	var checkErr error
	err := h.conn.Raw(func(driverConn any) error {
		if checker, ok := driverConn.(driver.NamedValueChecker); ok {
			nv := &driver.NamedValue{Ordinal: index, Value: value}
			checkErr = checker.CheckNamedValue(nv)
			if !errors.Is(checkErr, driver.ErrSkip) {
				return nil
			}
		}
		_, checkErr = driver.DefaultParameterConverter.ConvertValue(value)
		return nil
	})
	if err != nil {
		return err
	}
	return checkErr
}

// ClearParameters unsets every binding.
func (h *Handle) ClearParameters() {
	clear(h.params)
}

// Parameters returns the bound values in placeholder order; unset ones are nil.
func (h *Handle) Parameters() []any {
	values := make([]any, len(h.params))
	for i, b := range h.params {
		values[i] = b.value
	}
	return values
}

// args returns the bound values. With an exact count every parameter must be
// set; otherwise the values up to the highest bound index are passed and must
// have no gaps.
func (h *Handle) args(op string) ([]any, error) {
	n := len(h.params)
	if !h.exact {
		for n > 0 && !h.params[n-1].set {
			n--
		}
	}
	args := make([]any, n)
	for i, b := range h.params[:n] {
		if !b.set {
			return nil, h.newError(ErrBinding, op, fmt.Errorf("parameter %d is not set", i+1))
		}
		args[i] = b.value
	}
	return args, nil
}

// ExecuteUpdate runs the statement and returns the number of affected rows.
// The handle is released afterwards whatever the outcome.
func (h *Handle) ExecuteUpdate(ctx context.Context) (int64, error) {
	if err := h.claim(opExecuteUpdate, StateAutoCommit); err != nil {
		return 0, err
	}
	return h.executeUpdate(ctx)
}

func (h *Handle) executeUpdate(ctx context.Context) (int64, error) {
	return settle(ctx, h, opExecuteUpdate, StateClosed, StateClosed,
		func(n int64) int64 { return n },
		func(ctx context.Context) (int64, error) {
			args, err := h.args(opExecuteUpdate)
			if err != nil {
				return 0, err
			}
			res, err := h.stmt.ExecContext(ctx, args...)
			if err != nil {
				return 0, h.newError(ErrExecution, opExecuteUpdate, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, h.newError(ErrExecution, opExecuteUpdate, err)
			}
			return n, nil
		})
}

// ExecuteQuery runs the statement and copies every row into a Snapshot before
// closing the cursor, the statement and the connection, in that order.
// On failure no Snapshot is returned.
func (h *Handle) ExecuteQuery(ctx context.Context) (*Snapshot, error) {
	if err := h.claim(opExecuteQuery, StateAutoCommit); err != nil {
		return nil, err
	}
	return h.executeQuery(ctx)
}

func (h *Handle) executeQuery(ctx context.Context) (*Snapshot, error) {
	return settle(ctx, h, opExecuteQuery, StateClosed, StateClosed,
		func(s *Snapshot) int64 {
			if s == nil {
				return 0
			}
			return int64(s.Len())
		},
		func(ctx context.Context) (*Snapshot, error) {
			args, err := h.args(opExecuteQuery)
			if err != nil {
				return nil, err
			}
			rows, err := h.stmt.QueryContext(ctx, args...)
			if err != nil {
				return nil, h.newError(ErrExecution, opExecuteQuery, err)
			}

			snap, err := readSnapshot(rows)
			closeErr := rows.Close()
			if err != nil {
				e := h.newError(ErrExecution, opExecuteQuery, err)
				e.Cleanup = closeErr
				return nil, e
			}
			if closeErr != nil {
				h.opts.logger.Warn("Failed to close result cursor", closeErr, h.fields(opExecuteQuery))
			}
			return snap, nil
		})
}

// AddBatch appends the current bindings as one batch entry and switches the
// handle into manual transaction mode. Bindings stay set, so only the values
// that change need to be bound again before the next AddBatch.
func (h *Handle) AddBatch() error {
	if h.closed.Load() {
		return h.newError(ErrHandleClosed, opAddBatch, nil)
	}
	args, err := h.args(opAddBatch)
	if err != nil {
		return err
	}
	h.batch = append(h.batch, args)
	h.state.Store(int32(StateBatching))
	return nil
}

// ExecuteBatch runs every batch entry inside one transaction and returns the
// affected row count of each entry.
//
// The transaction is committed when all entries succeed. Otherwise it is rolled
// back before the handle is released and no counts are returned. A handle with
// no entries commits trivially and returns an empty slice.
func (h *Handle) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if err := h.claim(opExecuteBatch, StateAutoCommit, StateBatching, StateRolledBack); err != nil {
		return nil, err
	}
	return h.executeBatch(ctx)
}

func (h *Handle) executeBatch(ctx context.Context) ([]int64, error) {
	return settle(ctx, h, opExecuteBatch, StateCommitted, StateFailed,
		func(counts []int64) int64 {
			var total int64
			for _, n := range counts {
				total += n
			}
			return total
		},
		h.runBatch)
}

func (h *Handle) runBatch(ctx context.Context) ([]int64, error) {
	entries := h.batch
	h.batch = nil
	if len(entries) == 0 {
		return []int64{}, nil
	}

	tx, err := h.conn.BeginTx(ctx, h.opts.txOptions)
	if err != nil {
		return nil, h.newError(ErrTransaction, opExecuteBatch, fmt.Errorf("begin: %w", err))
	}
	finished := false
	defer func() {
		// Only reached unfinished when an entry panicked.
		if !finished {
			_ = tx.Rollback()
		}
	}()

	txStmt := tx.StmtContext(ctx, h.stmt)
	counts := make([]int64, 0, len(entries))
	for i, args := range entries {
		res, err := txStmt.ExecContext(ctx, args...)
		var n int64
		if err == nil {
			n, err = res.RowsAffected()
		}
		if err != nil {
			finished = true
			e := h.newError(ErrExecution, opExecuteBatch, fmt.Errorf("batch entry %d: %w", i+1, err))
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				e.Cleanup = &Error{Kind: ErrTransaction, Op: opRollback, SQL: h.sql, Err: rbErr}
			}
			return nil, e
		}
		counts = append(counts, n)
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return nil, h.newError(ErrTransaction, opExecuteBatch, fmt.Errorf("commit: %w", err))
	}
	return counts, nil
}

// Rollback discards pending batch entries and leaves manual mode's Batching
// state for RolledBack; a later AddBatch starts a new batch. It does nothing on
// a handle that has no pending entries or is already released.
func (h *Handle) Rollback() error {
	if h.closed.Load() || h.State() != StateBatching {
		return nil
	}
	discarded := len(h.batch)
	h.batch = nil
	h.state.Store(int32(StateRolledBack))
	h.opts.logger.Debug("Discarded pending batch entries", nil, map[string]interface{}{
		"sql":       h.sql,
		"discarded": discarded,
	})
	return nil
}

// Close releases a handle that will not be executed. Pending batch entries are
// discarded. Closing a released handle is a no-op.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.batch = nil
	err := h.release()
	h.state.Store(int32(StateClosed))
	if err != nil {
		return &Error{Op: opClose, SQL: h.sql, Err: err}
	}
	return nil
}

// claim takes the handle for a terminal operation allowed in the given states.
func (h *Handle) claim(op string, allowed ...State) error {
	if h.closed.Load() {
		return h.newError(ErrHandleClosed, op, nil)
	}
	if st := h.State(); !slices.Contains(allowed, st) {
		return h.newError(ErrInvalidState, op, fmt.Errorf("not allowed in state %s", st))
	}
	if !h.closed.CompareAndSwap(false, true) {
		return h.newError(ErrHandleClosed, op, nil)
	}
	return nil
}

// release closes the statement, then the connection.
func (h *Handle) release() error {
	var errs []error
	if h.stmt != nil {
		if err := h.stmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing statement: %w", err))
		}
		h.stmt = nil
	}
	if h.conn != nil {
		if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("closing connection: %w", err))
		}
		h.conn = nil
	}
	return errors.Join(errs...)
}

// settle runs exec for a claimed handle and releases the handle on every path,
// including a panic, which is re-raised after cleanup. A cleanup failure is
// attached to a failed result and only logged for a successful one.
func settle[T any](
	ctx context.Context,
	h *Handle,
	op string,
	onSuccess, onFailure State,
	size func(T) int64,
	exec func(context.Context) (T, error),
) (result T, err error) {
	ctx, end := h.instrument(ctx, op)

	defer func() {
		r := recover()
		if r != nil {
			err = h.newError(ErrExecution, op, fmt.Errorf("panic: %v", r))
		}

		final := onSuccess
		if err != nil {
			final = onFailure
		}
		cleanup := h.release()
		h.state.Store(int32(final))

		switch {
		case cleanup == nil:
		case err == nil:
			h.opts.logger.Warn("Failed to release statement resources", cleanup, h.fields(op))
		default:
			err = withCleanup(err, cleanup, op, h.sql)
		}

		if err != nil {
			var zero T
			result = zero
		}
		end(size(result), err)

		if r != nil {
			panic(r)
		}
	}()

	return exec(ctx)
}

// instrument starts the span for op and returns the function that ends it and
// reports the outcome to the observer.
func (h *Handle) instrument(ctx context.Context, op string) (context.Context, func(int64, error)) {
	start := time.Now()

	var span trace.Span
	if h.opts.tracer != nil {
		ctx, span = h.opts.tracer.StartSpan(ctx, "statement."+op)
		h.opts.tracer.SetAttributes(span, map[string]interface{}{
			"db.statement": h.sql,
			"db.params":    h.placeholders,
		})
	}

	return ctx, func(rows int64, err error) {
		duration := time.Since(start)
		if span != nil {
			h.opts.tracer.SetAttributes(span, map[string]interface{}{"db.rows": rows})
			if err != nil {
				h.opts.tracer.RecordErrorOnSpan(span, err)
			}
			span.End()
		}

		h.observe(op, duration, rows, err)

		fields := h.fields(op)
		fields["duration_ms"] = duration.Milliseconds()
		fields["rows"] = rows
		h.opts.logger.Debug("Statement executed", err, fields)
	}
}

func (h *Handle) observe(op string, duration time.Duration, rows int64, err error) {
	if h.opts.observer == nil {
		return
	}
	h.opts.observer.ObserveOperation(observability.OperationContext{
		Component: "statement",
		Operation: op,
		Resource:  h.sql,
		Duration:  duration,
		Error:     err,
		Size:      rows,
	})
}

func (h *Handle) fields(op string) map[string]interface{} {
	return map[string]interface{}{
		"operation": op,
		"sql":       h.sql,
	}
}
