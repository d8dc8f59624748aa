package handshake

import "context"

// Channel is the shared control surface between the launcher and the
// long-running engine process. The engine side polls and sets the same
// flags through the same medium, so the contract is deliberately a
// two-flag protocol rather than a rich RPC. Reads are eventually
// consistent snapshots and are re-checked every tick, never cached.
type Channel interface {
	// Connect reports whether the engine side of the channel is reachable.
	Connect(ctx context.Context) error

	// RequestResume sets the resume-requested flag.
	RequestResume(ctx context.Context) error

	// ResumeAcknowledged reads the resume-acknowledged flag.
	ResumeAcknowledged(ctx context.Context) (bool, error)

	// ClearResume resets both flags once a resume cycle has concluded.
	ClearResume(ctx context.Context) error
}
