package termgath

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/acqlab/launcher/api"
)

// TerminalGatherer prints run progress to stdout for interactive use.
type TerminalGatherer struct {
	StartedAt time.Time
}

func New() *TerminalGatherer { return &TerminalGatherer{StartedAt: time.Now()} }

func (t *TerminalGatherer) StartRun(runUuid string, experiment string) {
	fmt.Printf("== Run %s started ==\n", runUuid)
	fmt.Printf("experiment: %s\n", experiment)
}

func (t *TerminalGatherer) EngineGone(attemptsUsed int) {
	color.Yellow("!! engine process gone (attempts used: %d)", attemptsUsed)
}

func (t *TerminalGatherer) ResumeAttempt(attempt int) {
	fmt.Printf("-> resume attempt %d\n", attempt)
}

func (t *TerminalGatherer) Resumed(attempt int) {
	color.Green("<- engine resumed on attempt %d", attempt)
}

func (t *TerminalGatherer) FinishRun(record api.RunRecord) {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	if record.Outcome == api.OutcomeCompleted {
		color.Green("== Run finished in %s ==", dur)
	} else {
		color.Red("== Run %s: %s ==", record.Outcome, record.Reason)
	}
	fmt.Printf("exit=%d peak_mem=%dKiB wall=%dms resumes=%d\n",
		record.ExitCode, record.PeakMemKiB, record.WallMillis, record.ResumeAttempts)
}
