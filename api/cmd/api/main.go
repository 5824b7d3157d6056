package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cafeteria-menu-system/api/internal/eventstore"
	"cafeteria-menu-system/api/internal/handlers"
	"cafeteria-menu-system/api/internal/middleware"
	"cafeteria-menu-system/api/internal/repos"
	"cafeteria-menu-system/core/eventlog"
	"cafeteria-menu-system/core/menu"
	"cafeteria-menu-system/core/projection"
	"cafeteria-menu-system/shared/authx"
	"cafeteria-menu-system/shared/cachex"
	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/httpx"
	"cafeteria-menu-system/shared/logx"
	"cafeteria-menu-system/shared/metricsx"
	"cafeteria-menu-system/shared/observability"
)

type statusResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Env        string `json:"env,omitempty"`
	Version    string `json:"version,omitempty"`
	EventStore string `json:"event_store,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("menu-api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Warn(context.Background(), "tracer_init_failed", "tracer init failed", slog.String("error", err.Error()))
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := eventstore.Open(ctx, cfg)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "EVENT_STORE", Message: "failed to open event store"})
		logger.Error(ctx, "event_store_init_failed", "event store init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("event_store", cfg.EventStore),
			slog.String("error", err.Error()),
		)
	}

	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		if cache, err = cachex.New(cfg); err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "REDIS_ADDR", Message: "failed to init redis client"})
			cache = nil
		}
	}

	var (
		log     eventlog.Log
		service *menu.Service
	)
	if store != nil {
		log = store.Log
		var views projection.Store = projection.NewMemoryStore()
		if cache != nil {
			views = projection.NewRedisStore(cache.Client(), "")
		}
		projector := projection.NewProjector(log, views,
			projection.WithLogger(logger),
			projection.WithName("api"),
			projection.WithBatchSize(cfg.ProjectionBatchSize),
		)
		go func() {
			if err := projector.Run(ctx, cfg.ProjectionPollInterval()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "projector_stopped", "projector stopped", slog.String("error", err.Error()))
			}
		}()
		service = menu.NewService(log,
			menu.WithLogger(logger),
			menu.WithViews(views),
			menu.WithAppendHook(func(context.Context, eventlog.AppendResult) { projector.Trigger() }),
		)
	}

	var verifier authx.Verifier
	if v, err := authx.NewVerifierFromConfig(cfg); err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "OIDC_ISSUER", Message: "failed to initialize JWT verifier"})
	} else if v != nil {
		verifier = v
	}

	var auditWriter middleware.AuditWriter
	if store != nil && store.Pool != nil {
		auditWriter = repos.NewAuditRepo(store.Pool)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := store.Ping(r.Context()); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: event store unavailable",
				map[string]any{"problem": "event_store_ping_failed"},
			)
			return
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
					"service not ready: redis unavailable",
					map[string]any{"problem": "redis_ping_failed"},
				)
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:     "ready",
			Service:    cfg.ServiceName,
			Env:        cfg.Env,
			Version:    version,
			EventStore: cfg.EventStore,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	if service != nil {
		h := handlers.New(service,
			handlers.WithLogger(logger),
			handlers.WithTodayMenuCache(cache, cfg.MenuCacheTTL()),
		)
		h.Register(mux, handlers.Guards{
			Admin: middleware.AuthMiddleware{Verifier: verifier, Role: cfg.AdminRole}.Wrap,
			Kiosk: middleware.APIKeyMiddleware{Devices: service, Logger: logger}.Wrap,
		})
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	probe := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.StoreRequiredMiddleware{Log: log, Skip: probe}.Wrap(handler)
	handler = middleware.AuditMiddleware{
		Enabled: cfg.AuditEnabled,
		Repo:    auditWriter,
		Logger:  logger,
		Skip:    probe,
	}.Wrap(handler)
	handler = middleware.RateLimitMiddleware{
		Limiter: middleware.NewClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 2*time.Minute),
		Skip:    probe,
	}.Wrap(handler)
	handler = middleware.CORSMiddleware{AllowedOrigins: cfg.CORSAllowedOrigins, MaxAge: 10 * time.Minute}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = otelhttp.NewHandler(handler, "http")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.String("event_store", cfg.EventStore),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	stop()
	store.Close()
	if cache != nil {
		_ = cache.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
