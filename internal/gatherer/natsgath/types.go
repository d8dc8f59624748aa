package natsgath

import (
	"github.com/nats-io/nats.go"

	"github.com/acqlab/launcher/api"
)

type natsGatherer struct {
	nc      *nats.Conn
	subject string
	runUuid string
}

func (s *natsGatherer) StartRun(runUuid string, experiment string) {
	s.runUuid = runUuid
	s.send(api.NewRunStart(runUuid, experiment))
}

func (s *natsGatherer) EngineGone(attemptsUsed int) {
	s.send(api.NewEngineGone(s.runUuid, attemptsUsed))
}

func (s *natsGatherer) ResumeAttempt(attempt int) {
	s.send(api.NewResumeAttempt(s.runUuid, attempt))
}

func (s *natsGatherer) Resumed(attempt int) {
	s.send(api.NewResumeOk(s.runUuid, attempt))
}

func (s *natsGatherer) FinishRun(record api.RunRecord) {
	s.send(api.NewRunFinish(s.runUuid, record))
}
