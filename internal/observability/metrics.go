package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devfolio/portfolio-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	repositoryCounter    metric.Int64Counter
	heartbeatCounter     metric.Int64Counter
	statsPollCounter     metric.Int64Counter
	roleCacheCounter     metric.Int64Counter
	notificationCounter  metric.Int64Counter
	rateLimitCounter     metric.Int64Counter
	tokenValidateCounter metric.Int64Counter
	retryAfterHistogram  metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("portfolio-backend")
	repoCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	heartbeatCounter, err := meter.Int64Counter("presence.heartbeats")
	if err != nil {
		return nil, err
	}
	statsPollCounter, err := meter.Int64Counter("presence.stats.polls")
	if err != nil {
		return nil, err
	}
	roleCacheCounter, err := meter.Int64Counter("role.cache.events")
	if err != nil {
		return nil, err
	}
	notificationCounter, err := meter.Int64Counter("notification.events")
	if err != nil {
		return nil, err
	}
	rateLimitCounter, err := meter.Int64Counter("ratelimit.decisions")
	if err != nil {
		return nil, err
	}
	tokenValidateCounter, err := meter.Int64Counter("auth.token.validations")
	if err != nil {
		return nil, err
	}
	retryAfterHistogram, err := meter.Float64Histogram("ratelimit.retry_after.seconds")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		repositoryCounter:    repoCounter,
		heartbeatCounter:     heartbeatCounter,
		statsPollCounter:     statsPollCounter,
		roleCacheCounter:     roleCacheCounter,
		notificationCounter:  notificationCounter,
		rateLimitCounter:     rateLimitCounter,
		tokenValidateCounter: tokenValidateCounter,
		retryAfterHistogram:  retryAfterHistogram,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func RecordPresenceHeartbeat(ctx context.Context, trigger, status string) {
	m := current()
	if m == nil {
		return
	}
	m.heartbeatCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	))
}

func RecordPresenceStatsPoll(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.statsPollCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordRoleCacheEvent(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.roleCacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordNotificationEvent(ctx context.Context, kind, status string) {
	m := current()
	if m == nil {
		return
	}
	m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope string, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.retryAfterHistogram.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}
