package retry

import "time"

// Default ladder: 24h, 24h, 48h, then 48h repeats.
var DefaultStages = []time.Duration{24 * time.Hour, 24 * time.Hour, 48 * time.Hour}

const (
	DefaultMaxRetries     = 3
	DefaultTransientDelay = 30 * time.Minute
)

// Policy bounds retries of one enrichment kind.
type Policy struct {
	// MaxRetries caps counted failures; negative means unlimited.
	MaxRetries     int
	Stages         []time.Duration
	TransientDelay time.Duration
}

// DefaultPolicy returns 3 retries on the default ladder with a 30 minute
// transient delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		Stages:         append([]time.Duration(nil), DefaultStages...),
		TransientDelay: DefaultTransientDelay,
	}
}

// Backoff returns the delay after the retryCount-th counted failure. The
// last stage repeats once retryCount exceeds the ladder.
func (p Policy) Backoff(retryCount int) time.Duration {
	stages := p.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	idx := min(max(retryCount-1, 0), len(stages)-1)
	return stages[idx]
}

// Exhausted reports whether retryCount has used up the budget.
func (p Policy) Exhausted(retryCount int) bool {
	return p.MaxRetries >= 0 && retryCount >= p.MaxRetries
}

func (p Policy) transientDelay() time.Duration {
	if p.TransientDelay <= 0 {
		return DefaultTransientDelay
	}
	return p.TransientDelay
}
