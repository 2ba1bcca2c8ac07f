package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfilings/relgraph/backend/internal/queue"
	"github.com/openfilings/relgraph/backend/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/openfilings/relgraph/backend/pkg/graph"
	"github.com/openfilings/relgraph/backend/pkg/leaselock"
	"github.com/openfilings/relgraph/backend/pkg/logger"
	"github.com/openfilings/relgraph/backend/pkg/logger/console"
	"github.com/openfilings/relgraph/backend/pkg/relmodel/openai"
	"github.com/openfilings/relgraph/backend/pkg/resolve"
	graphstorage "github.com/openfilings/relgraph/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Relationship model client
	modelClient, err := openai.NewClient(openai.NewClientParams{
		Model:   util.GetEnv("REL_MODEL"),
		BaseURL: util.GetEnv("REL_MODEL_URL"),
		APIKey:  util.GetEnv("REL_MODEL_KEY"),
		Timeout: time.Duration(int(util.GetEnvNumeric("REL_MODEL_TIMEOUT_SECONDS", 120))) * time.Second,
	})
	if err != nil {
		logger.Fatal("Could not create relationship model client", "err", err)
	}

	// Init pgx client
	databaseURL := util.GetEnv("DATABASE_URL")
	if err := graphstorage.Migrate(databaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	threshold := util.GetEnvFloat("RESOLVE_THRESHOLD", resolve.DefaultThreshold)
	storeClient := graphstorage.NewGraphDBStorageWithConnection(pgConn,
		graphstorage.WithPolicy(resolve.Policy{
			Matcher:   resolve.TrigramMatcher{},
			Threshold: threshold,
		}),
	)
	locks := leaselock.New(pgConn)

	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{
		ParallelDocs:       int(util.GetEnvNumeric("PARALLEL_DOCS", 2)),
		ParallelModelCalls: int(util.GetEnvNumeric("PARALLEL_MODEL_CALLS", 8)),
		MaxRetries:         int(util.GetEnvNumeric("MODEL_MAX_RETRIES", 3)),
		MaxComentioned:     int(util.GetEnvNumeric("MAX_COMENTIONED", 25)),
	})
	if err != nil {
		logger.Fatal("Could not create graph client", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{"ingest_queue", "recalc_queue"}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one message is
	// in flight at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case "ingest_queue":
					processingErr = queue.ProcessIngestMessage(ctx, graphClient, modelClient, storeClient, string(qm.msg.Body))
				case "recalc_queue":
					processingErr = queue.ProcessRecalcMessage(ctx, locks, storeClient, string(qm.msg.Body))
				}

				// On error route to retry or dead-letter, otherwise ack.
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// After 10 retries the message goes to the dead-letter queue.
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "text/plain",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "text/plain",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
