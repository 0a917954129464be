package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-exactly-once-orders/internal/app"
	"github.com/imrishuroy/go-exactly-once-orders/internal/aws"
	"github.com/imrishuroy/go-exactly-once-orders/internal/config"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
)

func main() {
	cfg := config.Load()

	zl, err := app.NewLogger(cfg, cfg.AppName+"-worker")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}
	recs, err := app.NewRecorders(cfg, prometheus.NewRegistry(), clients.CloudWatch)
	if err != nil {
		zl.Fatal("failed to init metrics", zap.Error(err))
	}

	projection := orders.NewProjection(clients.DynamoDB, cfg.ProjectionTable, cfg.ProcessedEventsTable)
	p := NewProcessor(projection, recs.Recorder, zl)

	handler := func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		resp, err := p.Handle(ctx, ev)
		if recs.CloudWatch != nil {
			if ferr := recs.CloudWatch.Flush(ctx); ferr != nil {
				zl.Warn("metrics.flush_failed", zap.Error(ferr))
			}
		}
		return resp, err
	}

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			zl.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: body},
			},
		}
		resp, err := handler(context.Background(), event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			zl.Fatal("local handler failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(handler)
}
