package gatherer

import "github.com/acqlab/launcher/api"

// Gatherer receives progress events for a supervised run and forwards them
// to whatever the operator is watching: a terminal, a NATS subject, an SQS
// reply queue.
type Gatherer interface {
	StartRun(runUuid string, experiment string)
	EngineGone(attemptsUsed int)
	ResumeAttempt(attempt int)
	Resumed(attempt int)
	FinishRun(record api.RunRecord)
}

// Multi fans events out to several gatherers.
func Multi(gatherers ...Gatherer) Gatherer {
	return multi(gatherers)
}

type multi []Gatherer

func (m multi) StartRun(runUuid string, experiment string) {
	for _, g := range m {
		g.StartRun(runUuid, experiment)
	}
}

func (m multi) EngineGone(attemptsUsed int) {
	for _, g := range m {
		g.EngineGone(attemptsUsed)
	}
}

func (m multi) ResumeAttempt(attempt int) {
	for _, g := range m {
		g.ResumeAttempt(attempt)
	}
}

func (m multi) Resumed(attempt int) {
	for _, g := range m {
		g.Resumed(attempt)
	}
}

func (m multi) FinishRun(record api.RunRecord) {
	for _, g := range m {
		g.FinishRun(record)
	}
}
