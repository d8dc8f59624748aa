package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/acqlab/launcher/api"
	"github.com/acqlab/launcher/internal/artifact"
	"github.com/acqlab/launcher/internal/dispatch"
	"github.com/acqlab/launcher/internal/environment"
	"github.com/acqlab/launcher/internal/experiment"
	"github.com/acqlab/launcher/internal/gatherer"
	"github.com/acqlab/launcher/internal/gatherer/natsgath"
	"github.com/acqlab/launcher/internal/gatherer/termgath"
)

func main() {
	cmd := &cli.Command{
		Name:  "launcher",
		Usage: "supervise laboratory acquisition runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "supervise a single experiment definition",
				ArgsUsage: "<definition.toml>",
				Action:    runAction,
			},
			{
				Name:      "batch",
				Usage:     "supervise every definition in a directory",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "parallel",
						Usage: "number of experiments supervised at once",
						Value: 1,
					},
				},
				Action: batchAction,
			},
			{
				Name:   "listen",
				Usage:  "consume launch requests from the configured SQS queue",
				Action: listenAction,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.String("log-level"))
			return ctx, nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})))
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("missing definition file argument")
	}

	exp, err := experiment.ParseDefinition(path)
	if err != nil {
		return err
	}

	runner, gath, cleanup, err := buildRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	record, err := runner.Run(ctx, gath, exp)
	if err != nil {
		return err
	}
	if record.Outcome != api.OutcomeCompleted {
		return fmt.Errorf("experiment %s: %s", exp.Name, record.Reason)
	}
	return nil
}

func batchAction(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return fmt.Errorf("missing definition directory argument")
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no definition files in %s", dir)
	}
	sort.Strings(paths)

	exps := make([]experiment.Experiment, 0, len(paths))
	for _, p := range paths {
		exp, err := experiment.ParseDefinition(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		exps = append(exps, exp)
	}

	runner, gath, cleanup, err := buildRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := runner.RunBatch(ctx, gath, exps, int(cmd.Int("parallel")))
	if err != nil {
		return err
	}

	failed := 0
	for _, record := range records {
		if record.Outcome != api.OutcomeCompleted {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d experiments did not complete", failed, len(records))
	}
	return nil
}

func listenAction(ctx context.Context, cmd *cli.Command) error {
	env := environment.ReadEnvConfig()
	if env.SqsQueueUrl == "" {
		return fmt.Errorf("SQS_QUEUE_URL is not configured")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	runner, _, cleanup, err := buildRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	listener := dispatch.NewListener(sqs.NewFromConfig(cfg), env.SqsQueueUrl, runner, slog.Default())
	slog.Info("listening for launch requests", "queue", env.SqsQueueUrl)

	err = listener.Listen(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildRunner assembles the runner and the gatherer chain from the
// environment: terminal output always, NATS when configured, S3 mirroring
// when a bucket is set.
func buildRunner() (*experiment.Runner, gatherer.Gatherer, func(), error) {
	env := environment.ReadEnvConfig()
	cleanup := func() {}

	var upload func(key string, path string) error
	if env.S3Bucket != "" {
		var err error
		upload, err = artifact.GetS3UploadFunc(env.S3Bucket)
		if err != nil {
			return nil, nil, cleanup, err
		}
	}

	store, err := artifact.New(env.ArtifactDir, upload, slog.Default())
	if err != nil {
		return nil, nil, cleanup, err
	}

	gatherers := []gatherer.Gatherer{termgath.New()}
	if env.NatsUrl != "" {
		nc, err := nats.Connect(env.NatsUrl)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		cleanup = nc.Close
		gatherers = append(gatherers, natsgath.New(nc, env.NatsSubject))
	}

	runner := experiment.NewRunner(store, experiment.NewRegistry(), slog.Default())
	return runner, gatherer.Multi(gatherers...), cleanup, nil
}
