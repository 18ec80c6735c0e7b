package workerpool

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a pool that was shut down.
	ErrPoolClosed = errors.New("workerpool: pool is shut down")

	// ErrPoolSaturated is returned by TrySubmit, and by Submit under PolicyReject,
	// when every slot is busy.
	ErrPoolSaturated = errors.New("workerpool: all slots busy")
)
