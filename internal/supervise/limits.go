package supervise

import "time"

// Limits holds the resource ceilings enforced by the polling loop.
// A zero memory limit or timeout means unlimited for that dimension.
type Limits struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
	PollInterval     time.Duration
	GracePeriod      time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MemoryLimitBytes: 0,
		Timeout:          0,
		PollInterval:     1 * time.Second,
		GracePeriod:      5 * time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	if l.PollInterval <= 0 {
		l.PollInterval = 1 * time.Second
	}
	if l.GracePeriod <= 0 {
		l.GracePeriod = 5 * time.Second
	}
	return l
}
