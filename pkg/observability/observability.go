// Package observability provides structured logging and OpenTelemetry
// metrics for the event store and projection worker.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the metrics provider.
type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string // e.g. "localhost:4317" for gRPC
	Interval     time.Duration
	Enabled      bool
	Insecure     bool // dev only
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "chronicle",
		Environment:  "development",
		OTLPEndpoint: "localhost:4317",
		Interval:     15 * time.Second,
		Enabled:      false,
		Insecure:     true,
	}
}

// NewLogger builds the process logger at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Metrics holds the counters recorded by the store and worker. The zero
// value is a no-op recorder, so callers never need nil checks.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	eventsAppended  metric.Int64Counter
	appendConflicts metric.Int64Counter
	eventsProcessed metric.Int64Counter
	deadLetters     metric.Int64Counter
}

// NewMetrics creates the meter provider and instruments. When the config
// is disabled it returns a no-op Metrics.
func NewMetrics(ctx context.Context, cfg *Config) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
	)
	meter := provider.Meter("github.com/Mindburn-Labs/chronicle")

	m := &Metrics{provider: provider}
	if m.eventsAppended, err = meter.Int64Counter("chronicle.events.appended",
		metric.WithDescription("Events appended to streams")); err != nil {
		return nil, err
	}
	if m.appendConflicts, err = meter.Int64Counter("chronicle.append.conflicts",
		metric.WithDescription("Appends rejected on expected-version mismatch")); err != nil {
		return nil, err
	}
	if m.eventsProcessed, err = meter.Int64Counter("chronicle.projection.processed",
		metric.WithDescription("Events successfully applied by projection handlers")); err != nil {
		return nil, err
	}
	if m.deadLetters, err = meter.Int64Counter("chronicle.projection.dead_letters",
		metric.WithDescription("Events diverted to the dead-letter store")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordAppended(ctx context.Context, n int64, streamType string) {
	if m == nil || m.eventsAppended == nil {
		return
	}
	m.eventsAppended.Add(ctx, n, metric.WithAttributes(attribute.String("stream_type", streamType)))
}

func (m *Metrics) RecordConflict(ctx context.Context, streamType string) {
	if m == nil || m.appendConflicts == nil {
		return
	}
	m.appendConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("stream_type", streamType)))
}

func (m *Metrics) RecordProcessed(ctx context.Context, eventType string) {
	if m == nil || m.eventsProcessed == nil {
		return
	}
	m.eventsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *Metrics) RecordDeadLetter(ctx context.Context, eventType, reason string) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("reason", reason),
	))
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
