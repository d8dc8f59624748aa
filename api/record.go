package api

// Outcome values carried by RunRecord.
const (
	OutcomeCompleted      = "completed"
	OutcomeMemoryExceeded = "memory_exceeded"
	OutcomeTimedOut       = "timed_out"
	OutcomeKilled         = "killed"
	OutcomeCrashedNonZero = "crashed_nonzero"
)

// RunRecord is the standardized metadata record describing what ran.
// The surrounding application merges it into the experiment metadata file.
type RunRecord struct {
	RunUuid    string `json:"run_uuid"`
	Experiment string `json:"experiment"`

	Outcome  string `json:"outcome"`
	ExitCode int64  `json:"exit_code"`
	Reason   string `json:"reason"`

	PeakMemKiB int64 `json:"peak_mem_kib"`
	WallMillis int64 `json:"wall_ms"`

	// Number of crash-resume cycles consumed; zero for plain runs.
	ResumeAttempts int `json:"resume_attempts"`

	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`

	SystemInfo string `json:"system_info,omitempty"`
}
