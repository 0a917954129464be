package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-exactly-once-orders/internal/app"
	"github.com/imrishuroy/go-exactly-once-orders/internal/aws"
	"github.com/imrishuroy/go-exactly-once-orders/internal/config"
	"github.com/imrishuroy/go-exactly-once-orders/internal/handlers"
	"github.com/imrishuroy/go-exactly-once-orders/internal/idempotency"
	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/outbox"
)

func setupRouter(cfg handlers.HandlerConfig, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	cfg := config.Load()
	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	zl, err := app.NewLogger(cfg, cfg.AppName+"-api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	engine, err := app.OpenStore(cfg, zl)
	if err != nil {
		zl.Fatal("failed to open order store", zap.Error(err))
	}
	defer func() { _ = engine.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var clients *aws.AWSClients
	if app.NeedsAWS(cfg) {
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			zl.Fatal("failed to init aws clients", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	var cw aws.CloudWatchAPI
	if clients != nil {
		cw = clients.CloudWatch
	}
	recs, err := app.NewRecorders(cfg, registry, cw)
	if err != nil {
		zl.Fatal("failed to init metrics", zap.Error(err))
	}
	if recs.CloudWatch != nil {
		go recs.CloudWatch.Run(ctx, time.Minute, func(err error) {
			zl.Warn("metrics.flush_failed", zap.Error(err))
		})
	}

	orderStore := orders.NewStore(engine.DB())
	outboxStore := outbox.NewStore(engine.DB())
	workflow := orders.NewWorkflow(orderStore, app.WorkflowOptions(cfg, outboxStore)...)
	coordinator := idempotency.NewCoordinator(engine, idempotency.NewStore(), workflow,
		idempotency.WithMetrics(recs.Recorder),
		idempotency.WithLogger(zl),
	)

	var gatherer prometheus.Gatherer
	if cfg.MetricsBackend == config.MetricsPrometheus || cfg.MetricsBackend == config.MetricsBoth {
		gatherer = registry
	}
	handlerCfg := handlers.HandlerConfig{
		Coordinator: coordinator,
		Orders:      orderStore,
		RetryAfter:  cfg.DBLockTimeout,
	}
	// the read model only fills up when events are relayed
	if cfg.QueueURL != "" {
		handlerCfg.Views = orders.NewProjection(clients.DynamoDB, cfg.ProjectionTable, cfg.ProcessedEventsTable)
	}
	r := setupRouter(handlerCfg, gatherer)

	// if RUN_LOCAL is set, run local HTTP server for development.
	if cfg.RunLocal {
		if cfg.QueueURL != "" {
			relay := outbox.NewRelay(engine, outboxStore, aws.NewPublisher(clients.SQS, cfg.QueueURL),
				recs.Recorder, zl.With(zap.String("component", "outbox")), cfg.OutboxBatchSize)
			go relay.Run(ctx, cfg.OutboxPollInterval)
		}

		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zl.Info("running local server", zap.String("addr", cfg.HTTPAddr), zap.String("db", engine.Dialect()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		if recs.CloudWatch != nil {
			// the execution environment may freeze between invocations
			if ferr := recs.CloudWatch.Flush(ctx); ferr != nil {
				zl.Warn("metrics.flush_failed", zap.Error(ferr))
			}
		}
		return resp, err
	})
}
