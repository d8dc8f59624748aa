package experiment_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acqlab/launcher/api"
	"github.com/acqlab/launcher/internal/artifact"
	"github.com/acqlab/launcher/internal/experiment"
	"github.com/acqlab/launcher/internal/supervise"
)

// recordingGatherer captures events for assertions.
type recordingGatherer struct {
	mu       sync.Mutex
	started  []string
	finished []api.RunRecord
}

func (g *recordingGatherer) StartRun(runUuid string, experimentName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = append(g.started, experimentName)
}

func (g *recordingGatherer) EngineGone(int)    {}
func (g *recordingGatherer) ResumeAttempt(int) {}
func (g *recordingGatherer) Resumed(int)       {}

func (g *recordingGatherer) FinishRun(record api.RunRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finished = append(g.finished, record)
}

func quickLimits() supervise.Limits {
	return supervise.Limits{
		PollInterval: 50 * time.Millisecond,
		GracePeriod:  500 * time.Millisecond,
	}
}

func newTestRunner(t *testing.T) (*experiment.Runner, *experiment.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := artifact.New(dir, nil, slog.Default())
	require.NoError(t, err)
	registry := experiment.NewRegistry()
	return experiment.NewRunner(store, registry, slog.Default()), registry, dir
}

func TestRunProducesRecordAndArtifacts(t *testing.T) {
	runner, registry, dir := newTestRunner(t)
	gath := &recordingGatherer{}

	record, err := runner.Run(context.Background(), gath, experiment.Experiment{
		Name:    "echo-check",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo calibration ok"},
		Limits:  quickLimits(),
	})
	require.NoError(t, err)

	require.Equal(t, api.OutcomeCompleted, record.Outcome)
	require.Equal(t, int64(0), record.ExitCode)
	require.NotEmpty(t, record.RunUuid)
	require.NotEmpty(t, record.StartedAt)
	require.NotEmpty(t, record.FinishedAt)
	require.Equal(t, "echo-check", record.Experiment)
	require.Equal(t, 0, record.ResumeAttempts)

	require.Equal(t, []string{"echo-check"}, gath.started)
	require.Len(t, gath.finished, 1)

	// Record JSON and compressed log land in the artifact directory.
	_, err = os.Stat(filepath.Join(dir, record.RunUuid+".json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, record.RunUuid+".log.zst"))
	require.NoError(t, err)

	require.Equal(t, 0, registry.Len())
}

func TestRunAppliesFailMsgTemplate(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	gath := &recordingGatherer{}

	record, err := runner.Run(context.Background(), gath, experiment.Experiment{
		Name:            "widefield-map",
		Command:         "/bin/sh",
		Args:            []string{"-c", "exit 3"},
		Limits:          quickLimits(),
		FailMsgTemplate: "widefield acquisition aborted: %s",
	})
	require.NoError(t, err)

	require.Equal(t, api.OutcomeCrashedNonZero, record.Outcome)
	require.Equal(t, int64(3), record.ExitCode)
	require.Contains(t, record.Reason, "widefield acquisition aborted: ")
}

func TestRunLaunchFailureReturnsError(t *testing.T) {
	runner, registry, _ := newTestRunner(t)
	gath := &recordingGatherer{}

	_, err := runner.Run(context.Background(), gath, experiment.Experiment{
		Name:    "missing",
		Command: "/nonexistent/acquisition-binary",
		Limits:  quickLimits(),
	})
	require.ErrorIs(t, err, supervise.ErrLaunch)
	require.Equal(t, 0, registry.Len())
}

func TestRunBatchCollectsRecordsInOrder(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	gath := &recordingGatherer{}

	exps := []experiment.Experiment{
		{Name: "first", Command: "/bin/sh", Args: []string{"-c", "exit 0"}, Limits: quickLimits()},
		{Name: "second", Command: "/bin/sh", Args: []string{"-c", "exit 5"}, Limits: quickLimits()},
		{Name: "third", Command: "/bin/sh", Args: []string{"-c", "exit 0"}, Limits: quickLimits()},
	}

	records, err := runner.RunBatch(context.Background(), gath, exps, 2)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "first", records[0].Experiment)
	require.Equal(t, api.OutcomeCrashedNonZero, records[1].Outcome)
	require.Equal(t, int64(5), records[1].ExitCode)
	require.Equal(t, api.OutcomeCompleted, records[2].Outcome)
}

func TestEngineRunResumesOverFlagDir(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	gath := &recordingGatherer{}

	channelDir := t.TempDir()
	stateFile := filepath.Join(t.TempDir(), "crashed-once")

	// First stint crashes, second completes; the shim below plays the
	// engine side of the handshake.
	script := `if [ -f "` + stateFile + `" ]; then exit 0; else touch "` + stateFile + `"; exit 1; fi`

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	go func() {
		for engineCtx.Err() == nil {
			writeEngineFlag(channelDir, "engine-alive.toml")
			if _, err := os.Stat(filepath.Join(channelDir, "resume-requested.toml")); err == nil {
				writeEngineFlag(channelDir, "resume-acknowledged.toml")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	record, err := runner.Run(context.Background(), gath, experiment.Experiment{
		Name:    "engine-session",
		Command: "/bin/sh",
		Args:    []string{"-c", script},
		Limits:  quickLimits(),
		Engine: &experiment.EngineOpts{
			ChannelDir:        channelDir,
			MaxResumeAttempts: 3,
			ReconnectTimeout:  2 * time.Second,
		},
	})
	require.NoError(t, err)
	require.Equal(t, api.OutcomeCompleted, record.Outcome)
	require.Equal(t, 1, record.ResumeAttempts)
}

func writeEngineFlag(dir string, name string) {
	content := "version = 1\nvalue = true\nset_at = \"" +
		time.Now().UTC().Format(time.RFC3339) + "\"\n"
	tmp := filepath.Join(dir, name+".engine.tmp")
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return
	}
	_ = os.Rename(tmp, filepath.Join(dir, name))
}
