package supervise

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// killReapTimeout bounds how long Terminate waits for the kernel to reap
// the group after SIGKILL before giving up and reporting a fatal failure.
const killReapTimeout = 5 * time.Second

// Supervisor launches a child process in its own process group, polls it on
// a fixed interval, tracks peak resident memory of the whole group, and
// enforces the configured memory ceiling and wall-clock timeout. One
// Supervisor manages exactly one run.
type Supervisor struct {
	command string
	args    []string
	workDir string
	limits  Limits
	output  io.Writer

	started   bool
	startedAt time.Time

	procMu sync.Mutex
	cmd    *exec.Cmd

	peakMem atomic.Int64
	running atomic.Bool

	waitDone chan struct{}
	waitErr  error

	verdictMu     sync.Mutex
	verdict       Outcome
	verdictReason string

	termOnce sync.Once
	termErr  error
}

func New(command string, args []string, workDir string, limits Limits) *Supervisor {
	return &Supervisor{
		command:  command,
		args:     args,
		workDir:  workDir,
		limits:   limits.withDefaults(),
		waitDone: make(chan struct{}),
	}
}

// SetOutput redirects the child's stdout and stderr to w. Must be called
// before Run.
func (s *Supervisor) SetOutput(w io.Writer) {
	s.output = w
}

// PeakMemory returns the highest resident memory observed so far, in bytes.
// Safe to call concurrently with Run.
func (s *Supervisor) PeakMemory() int64 {
	return s.peakMem.Load()
}

// IsRunning reports whether the child is currently alive.
func (s *Supervisor) IsRunning() bool {
	return s.running.Load()
}

// Pid returns the child's pid, or 0 before launch.
func (s *Supervisor) Pid() int {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Run launches the child and supervises it until a terminal outcome is
// reached. A failure to launch is returned as an error wrapping ErrLaunch
// with no polling performed; everything else is reported as a Result value.
// Canceling ctx triggers the graceful-then-forceful termination sequence
// immediately and yields the Killed outcome.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	if s.started {
		panic("supervisor should not be run twice")
	}
	s.started = true

	cmd := exec.Command(s.command, s.args...)
	cmd.Dir = s.workDir
	if s.output != nil {
		cmd.Stdout = s.output
		cmd.Stderr = s.output
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: starting %s: %v", ErrLaunch, s.command, err)
	}

	s.procMu.Lock()
	s.cmd = cmd
	s.procMu.Unlock()

	s.startedAt = time.Now()
	s.running.Store(true)
	defer s.running.Store(false)

	go func() {
		s.waitErr = cmd.Wait()
		close(s.waitDone)
	}()

	pgid := cmd.Process.Pid

	ticker := time.NewTicker(s.limits.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.waitDone:
			return s.finalResult(), nil

		case <-ctx.Done():
			s.setVerdict(Killed, "terminated early on caller request")
			if err := s.Terminate(); err != nil {
				return s.finalResult(), err
			}
			<-s.waitDone
			return s.finalResult(), nil

		case <-ticker.C:
			if rss, err := sampleGroupRSS(pgid); err == nil && rss > s.peakMem.Load() {
				s.peakMem.Store(rss)
			}

			if s.limits.MemoryLimitBytes > 0 && s.peakMem.Load() > s.limits.MemoryLimitBytes {
				s.setVerdict(MemoryExceeded, fmt.Sprintf(
					"resident memory %d bytes exceeded limit of %d bytes",
					s.peakMem.Load(), s.limits.MemoryLimitBytes))
				if err := s.Terminate(); err != nil {
					return s.finalResult(), err
				}
				<-s.waitDone
				return s.finalResult(), nil
			}

			if s.limits.Timeout > 0 && time.Since(s.startedAt) > s.limits.Timeout {
				s.setVerdict(TimedOut, fmt.Sprintf(
					"run exceeded wall-clock timeout of %s", s.limits.Timeout))
				if err := s.Terminate(); err != nil {
					return s.finalResult(), err
				}
				<-s.waitDone
				return s.finalResult(), nil
			}
		}
	}
}

// Terminate delivers the graceful-then-forceful termination sequence to the
// whole process group: SIGTERM, grace period, then SIGKILL. Idempotent; on
// an already-dead group it is a no-op. If the group survives SIGKILL the
// failure is fatal and wraps ErrLaunch, never retried.
func (s *Supervisor) Terminate() error {
	s.termOnce.Do(func() {
		s.procMu.Lock()
		cmd := s.cmd
		s.procMu.Unlock()
		if cmd == nil || cmd.Process == nil {
			return
		}
		pgid := cmd.Process.Pid

		if err := signalGroup(pgid, syscall.SIGTERM); err != nil {
			s.termErr = fmt.Errorf("%w: signaling process group %d: %v", ErrLaunch, pgid, err)
			return
		}

		select {
		case <-s.waitDone:
			return
		case <-time.After(s.limits.GracePeriod):
		}

		if err := signalGroup(pgid, syscall.SIGKILL); err != nil {
			s.termErr = fmt.Errorf("%w: force-killing process group %d: %v", ErrLaunch, pgid, err)
			return
		}

		select {
		case <-s.waitDone:
		case <-time.After(killReapTimeout):
			s.termErr = fmt.Errorf("%w: process group %d survived SIGKILL", ErrLaunch, pgid)
		}
	})
	return s.termErr
}

// setVerdict records the terminal classification. First write wins so a run
// transitions to exactly one outcome.
func (s *Supervisor) setVerdict(outcome Outcome, reason string) {
	s.verdictMu.Lock()
	defer s.verdictMu.Unlock()
	if s.verdict == "" {
		s.verdict = outcome
		s.verdictReason = reason
	}
}

func (s *Supervisor) getVerdict() (Outcome, string) {
	s.verdictMu.Lock()
	defer s.verdictMu.Unlock()
	return s.verdict, s.verdictReason
}

// finalResult classifies the exit. Must only be called after waitDone has
// closed.
func (s *Supervisor) finalResult() Result {
	res := Result{
		PeakMemBytes: s.peakMem.Load(),
		WallTime:     time.Since(s.startedAt),
	}

	res.ExitCode = exitCode(s.waitErr)

	if verdict, reason := s.getVerdict(); verdict != "" {
		res.Outcome = verdict
		res.Reason = reason
		return res
	}

	if s.waitErr == nil {
		res.Outcome = Completed
		res.Reason = "process exited normally"
		return res
	}

	res.Outcome = CrashedNonZero
	res.Reason = fmt.Sprintf("process exited abnormally: %v", s.waitErr)
	return res
}

func exitCode(waitErr error) int64 {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return int64(exitErr.ExitCode())
	}
	return -1
}
