package export

import "time"

const (
	DefaultMaxRetries         = 3
	DefaultBaseBackoff        = time.Second
	DefaultMaxBackoff         = 30 * time.Second
	DefaultBatchRetryAttempts = 2
	DefaultBatchRetryDelay    = time.Second
)

// Policy controls how failed deliveries are retried.
type Policy struct {
	// MaxRetries is the number of single-path retries before a trace is
	// dropped. Zero drops a trace on its first failure.
	MaxRetries int
	// BaseBackoff is the delay before the first retry.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential delay.
	MaxBackoff time.Duration
	// BatchRetryAttempts is the number of extra attempts made with the same
	// batch payload before its traces are handed to the scheduler.
	BatchRetryAttempts int
	// BatchRetryDelay is the fixed wait between batch attempts.
	BatchRetryDelay time.Duration
}

// DefaultPolicy returns the policy used when nothing is overridden.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         DefaultMaxRetries,
		BaseBackoff:        DefaultBaseBackoff,
		MaxBackoff:         DefaultMaxBackoff,
		BatchRetryAttempts: DefaultBatchRetryAttempts,
		BatchRetryDelay:    DefaultBatchRetryDelay,
	}
}

// Backoff returns the delay before retry k (1-based):
// min(BaseBackoff * 2^(k-1), MaxBackoff).
func (p Policy) Backoff(k int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < k; i++ {
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
		d *= 2
	}
	return min(d, p.MaxBackoff)
}

// normalize replaces values that cannot drive a timer.
func (p Policy) normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	if p.BatchRetryAttempts < 0 {
		p.BatchRetryAttempts = 0
	}
	if p.BatchRetryDelay < 0 {
		p.BatchRetryDelay = 0
	}
	return p
}
