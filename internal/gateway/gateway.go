package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/cumulusworks/weather-cache-service/internal/models"
	"github.com/cumulusworks/weather-cache-service/internal/observability"
	"github.com/cumulusworks/weather-cache-service/internal/store"
)

// CacheTTL is the freshness window. A record older than this is expired;
// expiry is computed at read time, never enforced by deletion.
const CacheTTL = time.Hour

const backendName = "elasticsearch"

// ErrCacheDisabled is returned by Write when the store is not configured.
var ErrCacheDisabled = errors.New("cache not configured")

// WriteError wraps a store fault surfaced by Write. The read path never
// returns errors; the write path must, since a failed write has no graceful
// degradation.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "cache write failed: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// Gateway applies the cache-freshness policy over an injected store. A nil
// store means the cache is disabled: checks report cache_disabled without
// touching the store and writes fail with ErrCacheDisabled.
type Gateway struct {
	store  store.Store
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Gateway. store may be nil (cache disabled). tracer may be nil,
// in which case spans are no-ops; tracing never affects operation results.
func New(st store.Store, tracer trace.Tracer) *Gateway {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Gateway{
		store:  st,
		tracer: tracer,
		now:    time.Now,
	}
}

// Enabled reports whether a store is configured.
func (g *Gateway) Enabled() bool {
	return g.store != nil
}

// CanonicalKey derives the store document identifier for a city: lower-cased,
// spaces replaced with hyphens. Names that differ only in case or spacing
// collide to one record (last write wins). Note this also collides natively
// hyphenated names ("Winston-Salem" vs "Winston Salem"); preserved as-is.
func CanonicalKey(city string) string {
	return strings.ReplaceAll(strings.ToLower(city), " ", "-")
}

// Check looks up the cached record for city and applies the freshness policy.
// It never fails: store faults are absorbed, logged and reported as a generic
// error miss, since the caller can always fall back to fetching fresh data.
func (g *Gateway) Check(ctx context.Context, city string) models.CacheCheckResult {
	logger := loggerFromContext(ctx)

	if g.store == nil {
		observability.CacheChecksTotal.WithLabelValues("disabled").Inc()
		return models.CacheCheckResult{Cached: false, Reason: models.ReasonCacheDisabled}
	}

	ctx, span := g.tracer.Start(ctx, "cache.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("cache.backend", backendName),
		attribute.String("cache.key", city),
	)

	key := CanonicalKey(city)
	start := g.now()
	rec, found, err := g.store.Get(ctx, key)
	observeStoreOp("get", err, time.Since(start))

	if err != nil {
		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("cache.error", categorizeStoreError(err)),
		)
		observability.CacheChecksTotal.WithLabelValues("error").Inc()
		if logger != nil {
			logger.Warn("cache check store fault", zap.String("city", city), zap.Error(err))
		}
		return models.CacheCheckResult{Cached: false, Reason: models.ReasonError}
	}

	if !found {
		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("cache.miss_reason", models.ReasonNotFound),
		)
		observability.CacheChecksTotal.WithLabelValues("not_found").Inc()
		if logger != nil {
			logger.Debug("cache miss", zap.String("city", city), zap.String("reason", models.ReasonNotFound))
		}
		return models.CacheCheckResult{Cached: false, Reason: models.ReasonNotFound}
	}

	storedAt, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		// Malformed timestamps are a store fault, not a request failure.
		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("cache.error", "timestamp"),
		)
		observability.CacheChecksTotal.WithLabelValues("error").Inc()
		if logger != nil {
			logger.Warn("cache record has malformed timestamp",
				zap.String("city", city), zap.String("timestamp", rec.Timestamp), zap.Error(err))
		}
		return models.CacheCheckResult{Cached: false, Reason: models.ReasonError}
	}

	age := g.now().UTC().Sub(storedAt)
	ageSeconds := int64(age / time.Second)
	fresh := age < CacheTTL

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int64("cache.age_seconds", ageSeconds),
		attribute.Bool("cache.fresh", fresh),
	)
	if logger != nil {
		logger.Debug("cache hit",
			zap.String("city", city), zap.Int64("age_seconds", ageSeconds), zap.Bool("fresh", fresh))
	}

	if fresh {
		observability.CacheChecksTotal.WithLabelValues("hit").Inc()
		return models.CacheCheckResult{Cached: true, Data: rec.Weather, AgeSeconds: &ageSeconds}
	}
	observability.CacheChecksTotal.WithLabelValues("expired").Inc()
	return models.CacheCheckResult{
		Cached:     false,
		Reason:     models.ReasonExpired,
		AgeSeconds: &ageSeconds,
	}
}

// Write upserts the weather payload for city, fully replacing any existing
// record and stamping it with the current UTC time. Returns ErrCacheDisabled
// when the store is not configured and a *WriteError when the store rejects
// the write.
func (g *Gateway) Write(ctx context.Context, city string, payload json.RawMessage) (models.CacheWriteResult, error) {
	logger := loggerFromContext(ctx)

	if g.store == nil {
		observability.CacheWritesTotal.WithLabelValues("disabled").Inc()
		return models.CacheWriteResult{}, ErrCacheDisabled
	}

	ctx, span := g.tracer.Start(ctx, "cache.write")
	defer span.End()
	span.SetAttributes(
		attribute.String("cache.backend", backendName),
		attribute.String("cache.key", city),
	)

	key := CanonicalKey(city)
	rec := models.CacheRecord{
		City:      city,
		Weather:   payload,
		Timestamp: g.now().UTC().Format(time.RFC3339Nano),
	}

	start := g.now()
	err := g.store.Put(ctx, key, rec)
	observeStoreOp("put", err, time.Since(start))

	if err != nil {
		span.SetAttributes(
			attribute.Bool("cache.write.success", false),
			attribute.String("cache.error", err.Error()),
		)
		observability.CacheWritesTotal.WithLabelValues("error").Inc()
		if logger != nil {
			logger.Error("cache write failed", zap.String("city", city), zap.Error(err))
		}
		return models.CacheWriteResult{}, &WriteError{Err: err}
	}

	span.SetAttributes(attribute.Bool("cache.write.success", true))
	observability.CacheWritesTotal.WithLabelValues("success").Inc()
	if logger != nil {
		logger.Info("cached weather data", zap.String("city", city), zap.String("key", key))
	}
	return models.CacheWriteResult{Success: true, City: city}, nil
}

// observeStoreOp records latency and status for a store call.
func observeStoreOp(op string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.StoreOperationDurationSeconds.WithLabelValues(op, status).Observe(d.Seconds())
}

// categorizeStoreError returns a stable label for store faults (timeout,
// connection, decode, unknown).
func categorizeStoreError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return "connection"
	case strings.Contains(errStr, "decode"):
		return "decode"
	default:
		return "unknown"
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}
