package experiment

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/acqlab/launcher/internal/supervise"
)

// specExperiment maps the [experiment] table of a definition file
type specExperiment struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	WorkDir string   `toml:"work_dir"`
	FailMsg string   `toml:"fail_msg"`
}

// specLimits maps the [limits] table
type specLimits struct {
	MemKiB    int64 `toml:"mem_kib"`
	TimeoutMs int64 `toml:"timeout_ms"`
	PollMs    int64 `toml:"poll_ms"`
	GraceMs   int64 `toml:"grace_ms"`
}

// specEngine maps the optional [engine] table
type specEngine struct {
	ChannelDir         string `toml:"channel_dir"`
	MaxResumeAttempts  int    `toml:"max_resume_attempts"`
	ReconnectTimeoutMs int64  `toml:"reconnect_timeout_ms"`
	TotalBudgetMs      int64  `toml:"total_budget_ms"`
}

type specRoot struct {
	Experiment specExperiment `toml:"experiment"`
	Limits     specLimits     `toml:"limits"`
	Engine     *specEngine    `toml:"engine"`
}

// ParseDefinition reads an experiment definition TOML file and converts it
// to a runnable Experiment with defaults applied.
func ParseDefinition(path string) (Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Experiment{}, fmt.Errorf("failed to read definition file: %w", err)
	}
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return Experiment{}, fmt.Errorf("failed to parse TOML: %w", err)
	}

	if root.Experiment.Command == "" {
		return Experiment{}, fmt.Errorf("definition is missing experiment.command")
	}
	name := root.Experiment.Name
	if name == "" {
		name = root.Experiment.Command
	}

	// Apply limit defaults when not provided; zero mem/timeout stays zero
	// and means unlimited.
	pollMs := root.Limits.PollMs
	if pollMs == 0 {
		pollMs = 1000
	}
	graceMs := root.Limits.GraceMs
	if graceMs == 0 {
		graceMs = 5000
	}

	exp := Experiment{
		Name:    name,
		Command: root.Experiment.Command,
		Args:    root.Experiment.Args,
		WorkDir: root.Experiment.WorkDir,
		Limits: supervise.Limits{
			MemoryLimitBytes: root.Limits.MemKiB * 1024,
			Timeout:          time.Duration(root.Limits.TimeoutMs) * time.Millisecond,
			PollInterval:     time.Duration(pollMs) * time.Millisecond,
			GracePeriod:      time.Duration(graceMs) * time.Millisecond,
		},
		FailMsgTemplate: root.Experiment.FailMsg,
	}

	if root.Engine != nil {
		if root.Engine.ChannelDir == "" {
			return Experiment{}, fmt.Errorf("engine block is missing channel_dir")
		}
		attempts := root.Engine.MaxResumeAttempts
		if attempts == 0 {
			attempts = 3
		}
		reconnectMs := root.Engine.ReconnectTimeoutMs
		if reconnectMs == 0 {
			reconnectMs = 30000
		}
		exp.Engine = &EngineOpts{
			ChannelDir:        root.Engine.ChannelDir,
			MaxResumeAttempts: attempts,
			ReconnectTimeout:  time.Duration(reconnectMs) * time.Millisecond,
			TotalResumeBudget: time.Duration(root.Engine.TotalBudgetMs) * time.Millisecond,
		}
	}

	return exp, nil
}
