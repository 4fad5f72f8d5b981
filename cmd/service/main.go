package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cumulusworks/weather-cache-service/internal/config"
	"github.com/cumulusworks/weather-cache-service/internal/gateway"
	httphandler "github.com/cumulusworks/weather-cache-service/internal/http"
	"github.com/cumulusworks/weather-cache-service/internal/lifecycle"
	"github.com/cumulusworks/weather-cache-service/internal/observability"
	"github.com/cumulusworks/weather-cache-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	tp, err := observability.SetupTracing(context.Background(), cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		// Tracing is best-effort; the service runs without span export.
		logger.Warn("tracing setup failed, spans disabled", zap.Error(err))
	} else if tp != nil {
		logger.Info("tracing enabled", zap.String("otlp_endpoint", cfg.OTLPEndpoint))
	}

	var cacheStore store.Store
	var esStore *store.ElasticStore
	if cfg.CacheEnabled() {
		esStore, err = store.NewElasticStore(cfg.StoreEndpoint, cfg.StoreAPIKey, cfg.CacheIndex)
		if err != nil {
			logger.Fatal("store client", zap.Error(err))
		}
		cacheStore = esStore
		logger.Info("cache backend: elasticsearch",
			zap.String("endpoint", cfg.StoreEndpoint), zap.String("index", cfg.CacheIndex))

		bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := esStore.EnsureIndex(bootCtx); err != nil {
			// The index may already exist or the store may be briefly
			// unreachable; reads and writes surface their own faults.
			logger.Warn("index bootstrap failed", zap.String("index", cfg.CacheIndex), zap.Error(err))
		}
		bootCancel()
	} else {
		logger.Info("cache disabled: store endpoint or credential not configured")
	}

	gw := gateway.New(cacheStore, otel.Tracer("weather-cache-backend"))

	var storePing func(ctx context.Context) error
	if esStore != nil {
		storePing = esStore.Ping
	}
	handler := httphandler.NewHandler(gw, logger, storePing)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.TraceContextMiddleware)
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/", handler.GetRoot).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/cache/check", handler.CheckCache).Methods("GET")
	apiRouter.HandleFunc("/cache/write", handler.WriteCache).Methods("POST")

	// Trace context headers must be exposed, not just allowed, so that
	// cross-origin callers can read them from responses.
	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins([]string{cfg.CORSOrigin}),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Correlation-ID", "Traceparent", "Tracestate"}),
		handlers.ExposedHeaders([]string{"traceparent", "tracestate"}),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      corsMiddleware(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort),
			zap.Bool("cache_enabled", cfg.CacheEnabled()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, tp, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
