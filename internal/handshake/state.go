package handshake

// State is the current position of the crash-resume state machine.
type State string

const (
	StateRunning      State = "running"
	StateGone         State = "gone"
	StateReconnecting State = "reconnecting"
	StateAwaitingAck  State = "awaiting_resume_ack"
	StateResumed      State = "resumed"
	StateFailed       State = "failed"
	StateDone         State = "done"
)
