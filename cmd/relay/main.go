package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-exactly-once-orders/internal/app"
	"github.com/imrishuroy/go-exactly-once-orders/internal/aws"
	"github.com/imrishuroy/go-exactly-once-orders/internal/config"
	"github.com/imrishuroy/go-exactly-once-orders/internal/outbox"
)

func main() {
	cfg := config.Load()

	zl, err := app.NewLogger(cfg, cfg.AppName+"-relay")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.QueueURL == "" {
		zl.Fatal("ORDERS_QUEUE_URL is required")
	}

	engine, err := app.OpenStore(cfg, zl)
	if err != nil {
		zl.Fatal("failed to open order store", zap.Error(err))
	}
	defer func() { _ = engine.Close() }()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}
	// no scrape endpoint in a scheduled function
	recs, err := app.NewRecorders(cfg, prometheus.NewRegistry(), clients.CloudWatch)
	if err != nil {
		zl.Fatal("failed to init metrics", zap.Error(err))
	}

	relay := outbox.NewRelay(engine, outbox.NewStore(engine.DB()), aws.NewPublisher(clients.SQS, cfg.QueueURL),
		recs.Recorder, zl, cfg.OutboxBatchSize)

	// If RUN_LOCAL=true, run the relay loop until interrupted.
	if cfg.RunLocal {
		zl.Info("running local relay", zap.Duration("interval", cfg.OutboxPollInterval))
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		relay.Run(ctx, cfg.OutboxPollInterval)
		return
	}

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
		n, err := relay.PublishPending(ctx)
		zl.Info("outbox.pass_complete", zap.Int("published", n), zap.Error(err))
		if recs.CloudWatch != nil {
			if ferr := recs.CloudWatch.Flush(ctx); ferr != nil {
				zl.Warn("metrics.flush_failed", zap.Error(ferr))
			}
		}
		return err
	})
}
