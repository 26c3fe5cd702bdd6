package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting fintrack-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the activity worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	activityWorker := worker.NewActivityWorker(repo)

	consumed := make(chan error, 1)
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		<-consumed
	})

	go func() {
		logger.Info("Consuming activity messages", "queue", cfg.AMQPQueue)
		err := amqpClient.ConsumeActivity(ctx, activityWorker.HandleActivityMessage)
		if err != nil && ctx.Err() == nil {
			logger.Error("AMQP consumer stopped", log.FieldError, err)
			os.Exit(1)
		}
		consumed <- err
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
