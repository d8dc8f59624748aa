package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/acqlab/launcher/api"
	"github.com/acqlab/launcher/internal/artifact"
	"github.com/acqlab/launcher/internal/flagdir"
	"github.com/acqlab/launcher/internal/gatherer"
	"github.com/acqlab/launcher/internal/handshake"
	"github.com/acqlab/launcher/internal/supervise"
)

// Runner executes experiments: it wires the supervisor, the crash-resume
// handshake for engine runs, progress gathering, and artifact archival, and
// produces the standardized run record.
type Runner struct {
	store    *artifact.Store
	registry *Registry
	log      *slog.Logger

	systemInfo string
}

func NewRunner(store *artifact.Store, registry *Registry, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:      store,
		registry:   registry,
		log:        log,
		systemInfo: getSystemInfo(),
	}
}

func getSystemInfo() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s (%s/%s)", host, runtime.GOOS, runtime.GOARCH)
}

// Run supervises one experiment until its terminal outcome and returns the
// run record. Outcomes are values: a failed acquisition still returns a
// record and a nil error. Only launch-class failures return an error.
func (r *Runner) Run(ctx context.Context, gath gatherer.Gatherer, exp Experiment) (api.RunRecord, error) {
	runUuid := uuid.NewString()
	startedAt := time.Now()

	log := r.log.With("run_uuid", runUuid, "experiment", exp.Name)
	log.Info("starting run", "command", exp.Command, "engine", exp.Engine != nil)
	gath.StartRun(runUuid, exp.Name)

	active := r.registry.Add(runUuid, exp.Name)
	defer r.registry.Remove(runUuid)

	var logFile *os.File
	if r.store != nil {
		var err error
		logFile, err = os.Create(r.store.LogPath(runUuid))
		if err != nil {
			return api.RunRecord{}, fmt.Errorf("failed to create run log: %w", err)
		}
	}

	launch := func(ctx context.Context, resuming bool) (supervise.Result, error) {
		if resuming {
			log.Info("relaunching supervision after resume")
		}
		sup := supervise.New(exp.Command, exp.Args, exp.WorkDir, exp.Limits)
		if logFile != nil {
			sup.SetOutput(logFile)
		}
		active.SetSupervisor(sup)
		return sup.Run(ctx)
	}

	var res supervise.Result
	var attempts int
	var err error

	if exp.Engine != nil {
		var channel *flagdir.FlagDir
		channel, err = flagdir.New(exp.Engine.ChannelDir)
		if err == nil {
			hs := handshake.New(channel, handshake.Options{
				MaxResumeAttempts: exp.Engine.MaxResumeAttempts,
				ReconnectTimeout:  exp.Engine.ReconnectTimeout,
				TotalBudget:       exp.Engine.TotalResumeBudget,
			}, gath, log)
			res, err = hs.Run(ctx, launch)
			attempts = hs.AttemptsUsed()
		}
	} else {
		res, err = launch(ctx, false)
	}

	if logFile != nil {
		_ = logFile.Close()
	}
	if err != nil {
		log.Error("run failed to launch", "error", err)
		return api.RunRecord{}, err
	}

	if res.Outcome != supervise.Completed && exp.FailMsgTemplate != "" {
		res.Reason = fmt.Sprintf(exp.FailMsgTemplate, res.Reason)
	}

	record := api.RunRecord{
		RunUuid:        runUuid,
		Experiment:     exp.Name,
		Outcome:        string(res.Outcome),
		ExitCode:       res.ExitCode,
		Reason:         res.Reason,
		PeakMemKiB:     res.PeakMemBytes / 1024,
		WallMillis:     res.WallTime.Milliseconds(),
		ResumeAttempts: attempts,
		StartedAt:      startedAt.UTC().Format(time.RFC3339),
		FinishedAt:     time.Now().UTC().Format(time.RFC3339),
		SystemInfo:     r.systemInfo,
	}

	log.Info("run finished",
		"outcome", record.Outcome,
		"exit_code", record.ExitCode,
		"peak_mem_kib", record.PeakMemKiB,
		"wall_ms", record.WallMillis,
		"resume_attempts", record.ResumeAttempts)
	gath.FinishRun(record)

	if r.store != nil {
		if _, err := r.store.SaveRecord(record); err != nil {
			log.Error("failed to save run record", "error", err)
		}
		if _, err := r.store.ArchiveLog(runUuid); err != nil {
			log.Error("failed to archive run log", "error", err)
		}
	}

	return record, nil
}
