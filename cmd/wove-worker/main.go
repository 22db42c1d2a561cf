package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/karzal/wove/pkg/cmd"
	"github.com/karzal/wove/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "wove-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes and resumes workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "pause-expiry",
				Usage:   "How long a paused execution stays resumable (0 disables expiry)",
				Value:   0,
				Sources: cli.EnvVars("PAUSE_EXPIRY"),
			},
			&cli.StringFlag{
				Name:    "reaper-schedule",
				Usage:   "Cron schedule for sweeping expired pauses (empty disables the reaper)",
				Value:   "",
				Sources: cli.EnvVars("REAPER_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "resume-poll-interval",
				Usage:   "How often to poll the resume queue for missed requests",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("RESUME_POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("wove-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Wove Worker")

			registry := cmd.NewRegistry(logger)

			brokers := strings.Split(command.String("kafka-brokers"), ",")

			eventBus := cmd.NewEventBus(command.String("event-bus"), brokers, "wove-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			worker := NewWorker(WorkerConfig{
				ID:                 workerID,
				Store:              store,
				EventBus:           eventBus,
				Registry:           registry,
				Logger:             logger,
				PauseExpiry:        command.Duration("pause-expiry"),
				ResumePollInterval: command.Duration("resume-poll-interval"),
				ReaperSchedule:     command.String("reaper-schedule"),
				Secrets:            processSecrets(),
			})

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// processSecrets exposes the worker's own environment to {{NAME}} substitution.
func processSecrets() map[string]string {
	secrets := make(map[string]string)

	for _, entry := range os.Environ() {
		if name, value, ok := strings.Cut(entry, "="); ok {
			secrets[name] = value
		}
	}

	return secrets
}
