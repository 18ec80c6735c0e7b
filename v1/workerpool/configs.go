package workerpool

// DefaultSize is the slot count used when Config.Size is not positive.
const DefaultSize = 10

// Submission policies for a saturated pool.
const (
	// PolicyBlock makes Submit wait for a free slot (or for its context to end).
	PolicyBlock = "block"

	// PolicyReject makes Submit fail immediately with ErrPoolSaturated.
	PolicyReject = "reject"
)

// Config defines the worker pool.
type Config struct {
	// Size is the number of tasks that may run at the same time. Default 10.
	Size int `yaml:"size" envconfig:"WORKER_POOL_SIZE"`

	// Policy is PolicyBlock (default) or PolicyReject.
	Policy string `yaml:"policy" envconfig:"WORKER_POOL_POLICY"`
}
