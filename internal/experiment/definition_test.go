package experiment_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acqlab/launcher/internal/experiment"
)

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseDefinitionDefaults(t *testing.T) {
	path := writeDefinition(t, `
[experiment]
name = "two-photon-scan"
command = "/opt/rig/acquire"
args = ["--plane", "3"]
`)

	exp, err := experiment.ParseDefinition(path)
	require.NoError(t, err)
	require.Equal(t, "two-photon-scan", exp.Name)
	require.Equal(t, "/opt/rig/acquire", exp.Command)
	require.Equal(t, []string{"--plane", "3"}, exp.Args)

	// Unset limits mean unlimited; poll and grace get defaults.
	require.Equal(t, int64(0), exp.Limits.MemoryLimitBytes)
	require.Equal(t, time.Duration(0), exp.Limits.Timeout)
	require.Equal(t, 1*time.Second, exp.Limits.PollInterval)
	require.Equal(t, 5*time.Second, exp.Limits.GracePeriod)
	require.Nil(t, exp.Engine)
}

func TestParseDefinitionFull(t *testing.T) {
	path := writeDefinition(t, `
[experiment]
name = "ephys-session"
command = "/opt/rig/engine-run"
work_dir = "/data/session"
fail_msg = "ephys acquisition aborted: %s"

[limits]
mem_kib = 2048000
timeout_ms = 600000
poll_ms = 500
grace_ms = 2000

[engine]
channel_dir = "/data/session/handshake"
max_resume_attempts = 5
reconnect_timeout_ms = 15000
total_budget_ms = 120000
`)

	exp, err := experiment.ParseDefinition(path)
	require.NoError(t, err)
	require.Equal(t, int64(2048000*1024), exp.Limits.MemoryLimitBytes)
	require.Equal(t, 10*time.Minute, exp.Limits.Timeout)
	require.Equal(t, 500*time.Millisecond, exp.Limits.PollInterval)
	require.Equal(t, 2*time.Second, exp.Limits.GracePeriod)
	require.Equal(t, "ephys acquisition aborted: %s", exp.FailMsgTemplate)

	require.NotNil(t, exp.Engine)
	require.Equal(t, "/data/session/handshake", exp.Engine.ChannelDir)
	require.Equal(t, 5, exp.Engine.MaxResumeAttempts)
	require.Equal(t, 15*time.Second, exp.Engine.ReconnectTimeout)
	require.Equal(t, 2*time.Minute, exp.Engine.TotalResumeBudget)
}

func TestParseDefinitionEngineDefaults(t *testing.T) {
	path := writeDefinition(t, `
[experiment]
command = "/opt/rig/engine-run"

[engine]
channel_dir = "/tmp/handshake"
`)

	exp, err := experiment.ParseDefinition(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/rig/engine-run", exp.Name) // name falls back to command
	require.Equal(t, 3, exp.Engine.MaxResumeAttempts)
	require.Equal(t, 30*time.Second, exp.Engine.ReconnectTimeout)
}

func TestParseDefinitionMissingCommand(t *testing.T) {
	path := writeDefinition(t, `
[experiment]
name = "broken"
`)

	_, err := experiment.ParseDefinition(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "experiment.command")
}

func TestParseDefinitionMissingChannelDir(t *testing.T) {
	path := writeDefinition(t, `
[experiment]
command = "/opt/rig/engine-run"

[engine]
max_resume_attempts = 2
`)

	_, err := experiment.ParseDefinition(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "channel_dir")
}
