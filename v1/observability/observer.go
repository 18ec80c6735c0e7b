package observability

import "time"

// OperationContext describes one completed operation.
type OperationContext struct {
	// Component is the reporting package, e.g. "statement" or "workerpool".
	Component string

	// Operation is the operation name, e.g. "executeUpdate".
	Operation string

	// Resource identifies what was operated on. For statements this is the SQL text.
	Resource string

	// SubResource carries extra context such as the dialect or the async operation id.
	SubResource string

	// Duration is the wall time of the operation.
	Duration time.Duration

	// Error is the failure, or nil on success.
	Error error

	// Size is an operation specific magnitude: rows affected, rows returned, batch entries.
	Size int64

	// Metadata holds optional additional fields.
	Metadata map[string]interface{}
}

// Observer receives OperationContext values. Implementations must be safe for
// concurrent use since operations are reported from pool workers.
type Observer interface {
	ObserveOperation(ctx OperationContext)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx OperationContext)

// ObserveOperation calls f(ctx).
func (f ObserverFunc) ObserveOperation(ctx OperationContext) {
	f(ctx)
}
