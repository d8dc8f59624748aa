package experiment

import (
	"time"

	"github.com/acqlab/launcher/internal/supervise"
)

// Experiment describes one acquisition run. Rig-specific launchers differ
// only in this data, so each rig ships a definition file instead of its own
// launcher code.
type Experiment struct {
	Name    string
	Command string
	Args    []string
	WorkDir string

	Limits supervise.Limits

	// Engine is set for runs that participate in the crash-resume
	// handshake; nil for plain one-shot acquisitions.
	Engine *EngineOpts

	// FailMsgTemplate, when set, wraps the outcome reason for any
	// non-completed run. Must contain exactly one %s verb.
	FailMsgTemplate string
}

// EngineOpts configure the crash-resume handshake for engine-mode runs.
type EngineOpts struct {
	ChannelDir        string
	MaxResumeAttempts int
	ReconnectTimeout  time.Duration
	TotalResumeBudget time.Duration
}
