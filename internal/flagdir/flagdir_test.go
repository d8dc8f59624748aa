package flagdir_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acqlab/launcher/internal/flagdir"
	"github.com/acqlab/launcher/internal/handshake"
	"github.com/acqlab/launcher/internal/supervise"
)

var _ handshake.Channel = (*flagdir.FlagDir)(nil)

func TestResumeFlagRoundtrip(t *testing.T) {
	ctx := context.Background()
	fd, err := flagdir.New(t.TempDir())
	require.NoError(t, err)

	requested, err := fd.ResumeRequested(ctx)
	require.NoError(t, err)
	require.False(t, requested)

	require.NoError(t, fd.RequestResume(ctx))

	// Engine side observes the request and acknowledges.
	requested, err = fd.ResumeRequested(ctx)
	require.NoError(t, err)
	require.True(t, requested)

	acked, err := fd.ResumeAcknowledged(ctx)
	require.NoError(t, err)
	require.False(t, acked)

	require.NoError(t, fd.Acknowledge(ctx))

	acked, err = fd.ResumeAcknowledged(ctx)
	require.NoError(t, err)
	require.True(t, acked)

	require.NoError(t, fd.ClearResume(ctx))

	requested, err = fd.ResumeRequested(ctx)
	require.NoError(t, err)
	require.False(t, requested)
	acked, err = fd.ResumeAcknowledged(ctx)
	require.NoError(t, err)
	require.False(t, acked)
}

func TestClearResumeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fd, err := flagdir.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fd.ClearResume(ctx))
	require.NoError(t, fd.ClearResume(ctx))
}

func TestConnectRequiresFreshHeartbeat(t *testing.T) {
	ctx := context.Background()
	fd, err := flagdir.New(t.TempDir())
	require.NoError(t, err)

	require.Error(t, fd.Connect(ctx))

	require.NoError(t, fd.MarkEngineAlive(ctx))
	require.NoError(t, fd.Connect(ctx))

	fd.SetStaleAfter(1 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.Error(t, fd.Connect(ctx))
}

func TestSchemaVersionGuard(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fd, err := flagdir.New(dir)
	require.NoError(t, err)

	bad := "version = 99\nvalue = true\nset_at = \"2026-01-01T00:00:00Z\"\n"
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "resume-acknowledged.toml"), []byte(bad), 0644))

	_, err = fd.ResumeAcknowledged(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema version")
}

func TestHandshakeOverFlagDir(t *testing.T) {
	ctx := context.Background()
	fd, err := flagdir.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fd.MarkEngineAlive(ctx))

	// Engine shim: acknowledge as soon as the resume request appears.
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		for {
			requested, err := fd.ResumeRequested(ctx)
			if err == nil && requested {
				_ = fd.Acknowledge(ctx)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	defer func() { <-engineDone }()

	hs := handshake.New(fd, handshake.Options{
		MaxResumeAttempts: 3,
		ReconnectTimeout:  2 * time.Second,
		PollInterval:      5 * time.Millisecond,
	}, nil, nil)

	launches := 0
	res, err := hs.Run(ctx, func(ctx context.Context, resuming bool) (supervise.Result, error) {
		launches++
		if launches == 1 {
			return supervise.Result{Outcome: supervise.CrashedNonZero, ExitCode: 1}, nil
		}
		return supervise.Result{Outcome: supervise.Completed}, nil
	})
	require.NoError(t, err)
	require.Equal(t, supervise.Completed, res.Outcome)
	require.Equal(t, 1, hs.AttemptsUsed())
}
