// Package workerpool provides the bounded pool that runs asynchronous statement
// executions off the caller's goroutine.
//
// A Pool has a fixed number of slots (default 10). Each accepted Task runs on its
// own goroutine once it holds a slot, so at most Size tasks run at a time.
//
//	pool := workerpool.New(workerpool.Config{Size: 8})
//	defer pool.Shutdown(ctx)
//
//	err := pool.Submit(ctx, func(ctx context.Context) {
//		// blocking work
//	})
//
// # Saturation
//
// Under PolicyBlock, Submit waits for a slot until its context is done or the pool
// shuts down. Under PolicyReject it fails at once with ErrPoolSaturated. TrySubmit
// never waits regardless of policy.
//
// # Shutdown
//
// Shutdown stops accepting work, fails submitters still waiting with
// ErrPoolClosed and waits for running tasks. Tasks are not cancelled; they see
// whatever context they were submitted with.
package workerpool
