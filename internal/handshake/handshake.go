package handshake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acqlab/launcher/internal/supervise"
)

// ResumeFailedExitCode is the sentinel exit code carried by the
// CrashedNonZero outcome when the resume handshake exhausts its attempts.
const ResumeFailedExitCode = 86

// LaunchFunc starts one supervised stint of the engine process and blocks
// until it reaches a terminal outcome. resuming is true on every stint
// after a successful resume handshake.
type LaunchFunc func(ctx context.Context, resuming bool) (supervise.Result, error)

// Events receives progress notifications from the resume loop. All methods
// may be called from the supervising goroutine only.
type Events interface {
	EngineGone(attemptsUsed int)
	ResumeAttempt(attempt int)
	Resumed(attempt int)
}

// Options configure the bounded resume loop.
type Options struct {
	// MaxResumeAttempts bounds the total number of reconnect+resume cycles
	// across all disappearances of the engine; attempts are never reset.
	MaxResumeAttempts int

	// ReconnectTimeout bounds each attempt to re-establish the control
	// channel. Also the default acknowledgment deadline.
	ReconnectTimeout time.Duration

	// AckTimeout bounds the wait for the resume-acknowledged flag per
	// attempt. Zero means ReconnectTimeout.
	AckTimeout time.Duration

	// PollInterval is the sleep between flag re-reads.
	PollInterval time.Duration

	// Backoff is the pause before retrying a failed reconnect.
	Backoff time.Duration

	// TotalBudget optionally caps the wall-clock time spent inside the
	// resume loop across all attempts. Zero disables the cap; the loop is
	// still bounded by the per-attempt deadlines times MaxResumeAttempts.
	TotalBudget time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxResumeAttempts <= 0 {
		o.MaxResumeAttempts = 3
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = 30 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = o.ReconnectTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.Backoff <= 0 {
		o.Backoff = 1 * time.Second
	}
	return o
}

// Handshake coordinates supervision of an engine process that may crash
// mid-run: when a stint ends in an out-of-band crash it reconnects to the
// control channel, signals resume intent, waits for the engine side to
// acknowledge, and hands control back to the supervisor. Attempts are
// bounded; exhausting them is fatal and surfaced as a terminal outcome,
// never silently swallowed.
type Handshake struct {
	ch     Channel
	opts   Options
	events Events
	log    *slog.Logger

	mu           sync.Mutex
	state        State
	attemptsUsed int
}

func New(ch Channel, opts Options, events Events, log *slog.Logger) *Handshake {
	if log == nil {
		log = slog.Default()
	}
	return &Handshake{
		ch:     ch,
		opts:   opts.withDefaults(),
		events: events,
		log:    log,
		state:  StateRunning,
	}
}

// State returns the current machine state. Safe to call concurrently.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// AttemptsUsed returns how many resume cycles have been consumed so far.
func (h *Handshake) AttemptsUsed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attemptsUsed
}

func (h *Handshake) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handshake) consumeAttempt() int {
	h.mu.Lock()
	h.attemptsUsed++
	n := h.attemptsUsed
	h.mu.Unlock()
	return n
}

// Run supervises the engine through launch, crash and resume until a
// terminal outcome. A supervised stint ending in CrashedNonZero is treated
// as an out-of-band disappearance and enters the bounded resume loop; every
// other outcome is terminal as-is.
func (h *Handshake) Run(ctx context.Context, launch LaunchFunc) (supervise.Result, error) {
	resuming := false
	var last supervise.Result

	for {
		h.setState(StateRunning)
		res, err := launch(ctx, resuming)
		if err != nil {
			h.setState(StateFailed)
			return res, err
		}
		last = res

		if res.Outcome != supervise.CrashedNonZero {
			h.setState(StateDone)
			return res, nil
		}

		h.setState(StateGone)
		h.log.Warn("engine process gone",
			"exit_code", res.ExitCode, "attempts_used", h.AttemptsUsed())
		if h.events != nil {
			h.events.EngineGone(h.AttemptsUsed())
		}

		ok, err := h.resume(ctx)
		if err != nil {
			// Caller cancellation mid-handshake; no process is alive at
			// this point so the termination sequence has nothing to do.
			h.setState(StateFailed)
			res := last
			res.Outcome = supervise.Killed
			res.Reason = "terminated early on caller request during resume handshake"
			return res, nil
		}
		if !ok {
			h.setState(StateFailed)
			return h.failedResult(last), nil
		}
		resuming = true
	}
}

// resume runs reconnect+ack cycles until one is acknowledged or the attempt
// budget is exhausted. Returns false when the budget (count or wall-clock)
// ran out. The only error case is caller cancellation.
func (h *Handshake) resume(parent context.Context) (bool, error) {
	ctx := parent
	if h.opts.TotalBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, h.opts.TotalBudget)
		defer cancel()
	}

	for h.AttemptsUsed() < h.opts.MaxResumeAttempts {
		attempt := h.consumeAttempt()
		if h.events != nil {
			h.events.ResumeAttempt(attempt)
		}

		h.setState(StateReconnecting)
		if err := h.reconnect(ctx); err != nil {
			if parent.Err() != nil {
				return false, parent.Err()
			}
			if ctx.Err() != nil {
				h.log.Warn("resume wall-clock budget exhausted", "budget", h.opts.TotalBudget)
				return false, nil
			}
			h.log.Warn("engine reconnect failed",
				"attempt", attempt, "max", h.opts.MaxResumeAttempts, "error", err)
			if err := h.sleep(ctx, h.opts.Backoff); err != nil {
				if parent.Err() != nil {
					return false, parent.Err()
				}
				return false, nil
			}
			continue
		}

		h.setState(StateAwaitingAck)
		acked, err := h.awaitAck(ctx)
		if err != nil {
			if parent.Err() != nil {
				return false, parent.Err()
			}
			if ctx.Err() != nil {
				h.log.Warn("resume wall-clock budget exhausted", "budget", h.opts.TotalBudget)
				return false, nil
			}
			h.log.Warn("resume acknowledgment wait failed",
				"attempt", attempt, "error", err)
			continue
		}
		if !acked {
			// Deadline elapsed without acknowledgment; the attempt is
			// consumed and the next one re-enters reconnection. A crash
			// during the wait takes the same path.
			h.log.Warn("resume not acknowledged within deadline",
				"attempt", attempt, "deadline", h.opts.AckTimeout)
			continue
		}

		if err := h.ch.ClearResume(ctx); err != nil {
			h.log.Warn("failed to clear resume flags", "error", err)
		}
		h.setState(StateResumed)
		h.log.Info("engine resumed", "attempt", attempt)
		if h.events != nil {
			h.events.Resumed(attempt)
		}
		return true, nil
	}

	return false, nil
}

// reconnect polls channel reachability until ReconnectTimeout.
func (h *Handshake) reconnect(ctx context.Context) error {
	deadline := time.Now().Add(h.opts.ReconnectTimeout)
	var lastErr error
	for {
		err := h.ch.Connect(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("engine unreachable after %s: %w", h.opts.ReconnectTimeout, lastErr)
		}
		if err := h.sleep(ctx, h.opts.PollInterval); err != nil {
			return err
		}
	}
}

// awaitAck sets the resume-requested flag and polls the acknowledgment flag
// until AckTimeout. The flag is re-read every tick rather than cached.
func (h *Handshake) awaitAck(ctx context.Context) (bool, error) {
	if err := h.ch.RequestResume(ctx); err != nil {
		return false, fmt.Errorf("requesting resume: %w", err)
	}

	deadline := time.Now().Add(h.opts.AckTimeout)
	for {
		acked, err := h.ch.ResumeAcknowledged(ctx)
		if err != nil {
			return false, fmt.Errorf("reading resume acknowledgment: %w", err)
		}
		if acked {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if err := h.sleep(ctx, h.opts.PollInterval); err != nil {
			return false, err
		}
	}
}

func (h *Handshake) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failedResult converts the last supervised result into the terminal
// outcome for an exhausted resume budget, keeping the measured usage.
func (h *Handshake) failedResult(last supervise.Result) supervise.Result {
	res := last
	res.Outcome = supervise.CrashedNonZero
	res.ExitCode = ResumeFailedExitCode
	res.Reason = fmt.Sprintf(
		"engine did not resume after %d attempts (last exit: %s)",
		h.AttemptsUsed(), last.Reason)
	return res
}
