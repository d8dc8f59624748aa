// Package dispatch runs the launcher as a queue worker: launch requests
// arrive as JSON over SQS, runs are supervised locally, and progress is
// streamed back to the reply queue named in the request.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/acqlab/launcher/api"
	"github.com/acqlab/launcher/internal/experiment"
	"github.com/acqlab/launcher/internal/gatherer"
	"github.com/acqlab/launcher/internal/supervise"
)

type Listener struct {
	sqsClient *sqs.Client
	queueUrl  string
	runner    *experiment.Runner
	log       *slog.Logger
}

func NewListener(sqsClient *sqs.Client, queueUrl string, runner *experiment.Runner, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		sqsClient: sqsClient,
		queueUrl:  queueUrl,
		runner:    runner,
		log:       log,
	}
}

// Listen receives launch requests until ctx is canceled. Each request is
// supervised to completion before its queue message is deleted, so a
// crashed worker leaves the request visible for redelivery.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		output, err := l.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(l.queueUrl),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     5,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Error("failed to receive messages", "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		for _, message := range output.Messages {
			var req api.LaunchReq
			if err := json.Unmarshal([]byte(*message.Body), &req); err != nil {
				l.log.Error("failed to unmarshal launch request", "error", err)
				continue
			}

			gath := l.gathererFor(req)
			exp := reqToExperiment(req)
			if _, err := l.runner.Run(ctx, gath, exp); err != nil {
				l.log.Error("failed to run launch request",
					"run_uuid", req.RunUuid, "error", err)
				continue
			}

			_, err = l.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(l.queueUrl),
				ReceiptHandle: message.ReceiptHandle,
			})
			if err != nil {
				l.log.Error("failed to delete message", "error", err)
			}
		}
	}
}

func (l *Listener) gathererFor(req api.LaunchReq) gatherer.Gatherer {
	if req.ResQueueUrl == "" {
		return noopGatherer{}
	}
	return &sqsResQueueGatherer{
		sqsClient: l.sqsClient,
		queueUrl:  req.ResQueueUrl,
		log:       l.log,
	}
}

func reqToExperiment(req api.LaunchReq) experiment.Experiment {
	exp := experiment.Experiment{
		Name:    req.Experiment,
		Command: req.Command,
		Args:    req.Args,
		WorkDir: req.WorkDir,
		Limits: supervise.Limits{
			MemoryLimitBytes: req.MemLimKiB * 1024,
			Timeout:          time.Duration(req.TimeoutMs) * time.Millisecond,
			PollInterval:     time.Duration(req.PollMs) * time.Millisecond,
		},
	}
	if req.Engine {
		exp.Engine = &experiment.EngineOpts{
			ChannelDir:        req.ChannelDir,
			MaxResumeAttempts: req.MaxResumeAttempts,
			ReconnectTimeout:  time.Duration(req.ReconnectTimeoutMs) * time.Millisecond,
		}
	}
	return exp
}

type noopGatherer struct{}

func (noopGatherer) StartRun(string, string) {}
func (noopGatherer) EngineGone(int)          {}
func (noopGatherer) ResumeAttempt(int)       {}
func (noopGatherer) Resumed(int)             {}
func (noopGatherer) FinishRun(api.RunRecord) {}
