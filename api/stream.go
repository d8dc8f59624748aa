package api

import "time"

// MsgType is a message type for streaming run progress
type MsgType string

// Streaming message type constants
const (
	RunStartMsg      MsgType = "run_start"
	EngineGoneMsg    MsgType = "engine_gone"
	ResumeAttemptMsg MsgType = "resume_attempt"
	ResumeOkMsg      MsgType = "resume_ok"
	RunFinishMsg     MsgType = "run_finish"
)

// Header is the common header for all streaming progress messages
type Header struct {
	RunUuid string  `json:"run_uuid"`
	MsgType MsgType `json:"msg_type"`
}

// RunStart message sent when supervision of a run begins
type RunStart struct {
	Header
	Experiment  string `json:"experiment"`
	StartedTime string `json:"started_time"`
}

// EngineGone message sent when the engine process disappears out of band
type EngineGone struct {
	Header
	AttemptsUsed int `json:"attempts_used"`
}

// ResumeAttempt message sent when a reconnect+resume cycle starts
type ResumeAttempt struct {
	Header
	Attempt int `json:"attempt"`
}

// ResumeOk message sent when the engine acknowledged a resume request
type ResumeOk struct {
	Header
	Attempt int `json:"attempt"`
}

// RunFinish message sent with the terminal outcome of the run
type RunFinish struct {
	Header
	Record RunRecord `json:"record"`
}

func NewRunStart(runUuid string, experiment string) RunStart {
	return RunStart{
		Header:      Header{RunUuid: runUuid, MsgType: RunStartMsg},
		Experiment:  experiment,
		StartedTime: time.Now().UTC().Format(time.RFC3339),
	}
}

func NewEngineGone(runUuid string, attemptsUsed int) EngineGone {
	return EngineGone{
		Header:       Header{RunUuid: runUuid, MsgType: EngineGoneMsg},
		AttemptsUsed: attemptsUsed,
	}
}

func NewResumeAttempt(runUuid string, attempt int) ResumeAttempt {
	return ResumeAttempt{
		Header:  Header{RunUuid: runUuid, MsgType: ResumeAttemptMsg},
		Attempt: attempt,
	}
}

func NewResumeOk(runUuid string, attempt int) ResumeOk {
	return ResumeOk{
		Header:  Header{RunUuid: runUuid, MsgType: ResumeOkMsg},
		Attempt: attempt,
	}
}

func NewRunFinish(runUuid string, record RunRecord) RunFinish {
	return RunFinish{
		Header: Header{RunUuid: runUuid, MsgType: RunFinishMsg},
		Record: record,
	}
}
