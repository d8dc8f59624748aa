package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/acqlab/launcher/api"
)

// sqsResQueueGatherer streams run progress messages to the reply queue the
// request named.
type sqsResQueueGatherer struct {
	sqsClient *sqs.Client
	queueUrl  string
	runUuid   string
	log       *slog.Logger
}

func (s *sqsResQueueGatherer) StartRun(runUuid string, experiment string) {
	s.runUuid = runUuid
	s.send(api.NewRunStart(runUuid, experiment))
}

func (s *sqsResQueueGatherer) EngineGone(attemptsUsed int) {
	s.send(api.NewEngineGone(s.runUuid, attemptsUsed))
}

func (s *sqsResQueueGatherer) ResumeAttempt(attempt int) {
	s.send(api.NewResumeAttempt(s.runUuid, attempt))
}

func (s *sqsResQueueGatherer) Resumed(attempt int) {
	s.send(api.NewResumeOk(s.runUuid, attempt))
}

func (s *sqsResQueueGatherer) FinishRun(record api.RunRecord) {
	s.send(api.NewRunFinish(s.runUuid, record))
}

func (s *sqsResQueueGatherer) send(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal message", "error", err)
		return
	}

	_, err = s.sqsClient.SendMessage(context.TODO(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		s.log.Error("failed to send message to reply queue", "error", err)
	}
}
