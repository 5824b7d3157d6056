package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"cafeteria-menu-system/api/internal/eventstore"
	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/shared/cachex"
	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/influxx"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
	"cafeteria-menu-system/shared/mqx"
	"cafeteria-menu-system/shared/observability"
)

func main() {
	cfg, problems := config.Load("menu-projection-consumer", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.EventStore != config.EventStorePostgres || cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "a postgres event store is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
	}
	if cfg.RedisAddr == "" {
		problems = append(problems, config.Problem{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEndpoint != "" {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := eventstore.Open(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "event_store_init_failed", "event store init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer store.Close()

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(ctx, "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer cache.Close()

	opts := []projection.Option{
		projection.WithLogger(logger),
		projection.WithName("consumer"),
		projection.WithBatchSize(cfg.ProjectionBatchSize),
	}
	if cfg.InfluxURL != "" {
		influx, err := influxx.New(cfg)
		if err != nil {
			logger.Warn(ctx, "influx_init_failed", "influx disabled", slog.String("error", err.Error()))
		} else {
			defer influx.Close()
			if err := influx.Ping(ctx); err != nil {
				logger.Warn(ctx, "influx_unreachable", "influx not reachable yet", slog.String("error", err.Error()))
			}
			opts = append(opts, projection.WithSink(projection.InfluxSink{Client: influx}))
		}
	}
	projector := projection.NewProjector(store.Log, projection.NewRedisStore(cache.Client(), ""), opts...)

	handler := catchUpHandler{
		projector: projector,
		rdb:       cache.Client(),
		lockTTL:   time.Duration(cfg.ProjectionLockTTL) * time.Second,
		logger:    logger,
	}

	reader, err := mqx.NewConsumer(cfg, cfg.KafkaEventsTopic, cfg.KafkaGroupID)
	if err != nil {
		logger.Error(ctx, "kafka_init_failed", "kafka reader init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer reader.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Views may be behind if the bus lost messages while we were down.
	if _, err := handler.projector.CatchUp(ctx); err != nil {
		logger.Warn(ctx, "initial_catch_up_failed", "initial catch-up failed", slog.String("error", err.Error()))
	}

	logger.Info(ctx, "consumer_start", "menu projection consumer started",
		slog.String("topic", reader.Config().Topic),
		slog.String("group", cfg.KafkaGroupID),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		)
		ok := handler.handle(spanCtx, msg)
		span.End()
		if !ok {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}

	logger.Info(context.Background(), "consumer_stop", "menu projection consumer stopped")
}
