package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/backend"
	"github.com/OFFIS-RIT/prospect/internal/queue"
	"github.com/OFFIS-RIT/prospect/internal/storage"
	"github.com/OFFIS-RIT/prospect/internal/timing"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/logger/console"
	"github.com/OFFIS-RIT/prospect/pkg/report"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Format: util.GetEnvString("LOG_FORMAT", "text"),
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	// Init s3 store
	client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	store, err := storage.NewStore(client, util.GetEnv("AWS_BUCKET"), util.GetEnv("AWS_PUBLIC_ENDPOINT"))
	if err != nil {
		logger.Fatal("Failed to create report store", "err", err)
	}

	// Reports always run against the ClickHouse report endpoint
	lk, err := backend.OpenLookup(ctx)
	if err != nil {
		logger.Fatal("Failed to open lookup backend", "err", err)
	}
	defer lk.Close()
	if lk.Reports == nil {
		logger.Fatal("CLICKHOUSE_REPORT_ENDPOINT is required by the worker")
	}
	generator := report.NewGenerator(lk.Reports, store)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.ReportQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// Only one report is generated at a time
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.ReportQueue,
		queue.ReportQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.ReportQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.ReportQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.ReportQueue)
				return
			}

			startTime := time.Now()
			logger.Info("Received message", "queue", queue.ReportQueue, "retries", queue.Retries(msg.Headers))

			if err := queue.ProcessReportMessage(ctx, generator, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.ReportQueue, "err", err)
				queue.HandleProcessingError(consumerCh, msg, queue.ReportQueue)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.ReportQueue)
			}

			logger.Info("Processing time", "duration", timing.Since(startTime))
			logger.Info("Waiting for next message")
		}
	}
}
