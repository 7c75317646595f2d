package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"auth-session-service/internal/config"
)

const meterName = "auth-session-service"

var (
	metricsOnce        sync.Once
	repoOpCounter      metric.Int64Counter
	authAttemptCounter metric.Int64Counter
	accessCheckCounter metric.Int64Counter
	rateLimitCounter   metric.Int64Counter
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
	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func initCounters() {
	meter := otel.Meter(meterName)
	if c, err := meter.Int64Counter("repository.operations"); err == nil {
		repoOpCounter = c
	}
	if c, err := meter.Int64Counter("auth.attempts"); err == nil {
		authAttemptCounter = c
	}
	if c, err := meter.Int64Counter("auth.access_token.validations"); err == nil {
		accessCheckCounter = c
	}
	if c, err := meter.Int64Counter("http.rate_limit.decisions"); err == nil {
		rateLimitCounter = c
	}
}

// RecordRepositoryOperation counts one store call per entity, operation and
// outcome (success, not_found, conflict, error).
func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	metricsOnce.Do(initCounters)
	if repoOpCounter == nil {
		return
	}
	repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordAuthAttempt counts login, refresh and logout outcomes.
func RecordAuthAttempt(ctx context.Context, operation, outcome string) {
	metricsOnce.Do(initCounters)
	if authAttemptCounter == nil {
		return
	}
	authAttemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome string) {
	metricsOnce.Do(initCounters)
	if accessCheckCounter == nil {
		return
	}
	accessCheckCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	metricsOnce.Do(initCounters)
	if rateLimitCounter == nil {
		return
	}
	rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}
