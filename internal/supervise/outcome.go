package supervise

import (
	"errors"
	"time"
)

// Outcome is the single terminal classification of a supervised run.
type Outcome string

const (
	Completed      Outcome = "completed"
	MemoryExceeded Outcome = "memory_exceeded"
	TimedOut       Outcome = "timed_out"
	Killed         Outcome = "killed"
	CrashedNonZero Outcome = "crashed_nonzero"
)

// ErrLaunch covers fatal process-control failures: the child could not be
// started, or a forced kill did not take effect. Never retried.
var ErrLaunch = errors.New("process control failed")

// Result describes how a supervised run ended. Exactly one Result is
// produced per run.
type Result struct {
	Outcome  Outcome
	ExitCode int64
	Reason   string

	PeakMemBytes int64
	WallTime     time.Duration
}
