package statement

// State is the transaction state of a Handle.
//
//	AutoCommit --AddBatch--> Batching --ExecuteBatch ok--> Committed
//	                           |  ^   \--ExecuteBatch fail--> Failed
//	                   Rollback|  |AddBatch
//	                           v  |
//	                        RolledBack
//
// ExecuteUpdate and ExecuteQuery are only allowed in AutoCommit and end in
// Closed. Committed, Failed and Closed are terminal.
type State int32

const (
	StateAutoCommit State = iota
	StateBatching
	StateRolledBack
	StateCommitted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAutoCommit:
		return "auto-commit"
	case StateBatching:
		return "batching"
	case StateRolledBack:
		return "rolled-back"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further operation is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed || s == StateClosed
}
