// Package statement executes prepared SQL statements on exclusively borrowed
// connections, synchronously or on a worker pool with completion callbacks.
//
// A Handle owns one connection and one prepared statement for exactly one
// execution. Whatever the outcome, executing a handle releases both, and query
// results are copied into a Snapshot before the cursor is closed, so a result
// never depends on a connection that may already be gone.
//
// # Synchronous Usage
//
//	h, err := statement.New(ctx, db, "INSERT INTO t(x) VALUES (?)")
//	if err != nil {
//		return err // ErrPreparation
//	}
//	if err := h.SetParameter(1, 42); err != nil {
//		h.Close()
//		return err // ErrBinding
//	}
//	n, err := h.ExecuteUpdate(ctx) // h is released here
//
// Any *sql.DB, or a *connection.Provider, can serve as the connection source.
//
// # Batches and Transactions
//
// AddBatch records the current bindings and moves the handle into manual
// transaction mode for good. ExecuteBatch runs all entries in one transaction:
//
//	h.SetParameter(1, "a")
//	h.AddBatch()
//	h.SetParameter(1, "b")
//	h.AddBatch()
//	counts, err := h.ExecuteBatch(ctx) // committed, or rolled back on any failure
//
// Rollback discards the pending entries without releasing the handle. While
// entries are pending ExecuteUpdate and ExecuteQuery fail with ErrInvalidState.
//
// # Asynchronous Usage
//
// With a dispatcher (normally a *workerpool.Pool), the Async variants return
// immediately with a Future and invoke the callback on a worker:
//
//	h, _ := statement.New(ctx, db, "SELECT id, name FROM users", statement.WithDispatcher(pool))
//	_, err := h.ExecuteQueryAsync(ctx, func(rows *statement.Snapshot, err error) {
//		// exactly one of rows and err is set
//	})
//
// The callback runs exactly once for every accepted submission, including when
// the execution panics. Update and batch submissions may omit the callback;
// their failures are then reported to the DiagnosticSink, which logs them
// unless WithSink installs another one (see the deadletter package).
//
// # Errors
//
// Every error is an *Error. errors.Is matches its kind (ErrPreparation,
// ErrBinding, ErrExecution, ErrTransaction, ErrDispatch, ErrHandleClosed,
// ErrInvalidState, ErrNilCallback) as well as the driver error underneath.
// A failure to release resources after a failed execution is kept in
// Error.Cleanup; it never hides the primary error.
//
// # Concurrency
//
// A Handle belongs to one goroutine at a time; submitting it asynchronously
// hands it to the worker. Different handles are independent and the order in
// which asynchronous submissions complete is unspecified.
package statement
