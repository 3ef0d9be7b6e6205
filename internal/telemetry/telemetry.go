// Package telemetry configures OpenTelemetry tracing for the service and the CLI.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Mode selects which spans are sampled.
type Mode string

const (
	ModeOff Mode = "off"
	// ModeErrors keeps a small sample so failing requests still surface.
	ModeErrors  Mode = "errors"
	ModeSampled Mode = "sampled"
	// ModeDetailed samples everything and adds a span per GitHub and Redis call.
	ModeDetailed Mode = "detailed"
)

const (
	defaultServiceName = "github-insights"
	minErrorsRatio     = 0.01
)

var currentMode atomic.Value

// Config configures OpenTelemetry tracing setup.
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	TraceMode        string
	TraceSampleRatio float64
}

// Runtime contains initialized telemetry providers and lifecycle hooks.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// Setup installs the global tracer provider and records the active mode.
// Disabled tracing keeps a provider that never samples.
func Setup(cfg Config) (Runtime, error) {
	mode := ParseMode(cfg.TraceMode)
	if !cfg.Enabled {
		mode = ModeOff
	}
	currentMode.Store(mode)

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)}
	if version := strings.TrimSpace(cfg.ServiceVersion); version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(version))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return Runtime{}, fmt.Errorf("merge telemetry resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(mode.sampler(cfg.TraceSampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return Runtime{
		TracerProvider: provider,
		Shutdown:       provider.Shutdown,
	}, nil
}

// ParseMode normalizes a configured mode. Empty and unknown values sample.
func ParseMode(raw string) Mode {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeOff, ModeErrors, ModeDetailed:
		return mode
	default:
		return ModeSampled
	}
}

func (m Mode) sampler(ratio float64) sdktrace.Sampler {
	ratio = clampRatio(ratio)
	switch m {
	case ModeOff:
		return sdktrace.NeverSample()
	case ModeDetailed:
		return sdktrace.AlwaysSample()
	case ModeErrors:
		ratio = max(ratio, minErrorsRatio)
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// TraceMode reports the active trace mode; "off" before Setup runs.
func TraceMode() Mode {
	mode, ok := currentMode.Load().(Mode)
	if !ok || mode == "" {
		return ModeOff
	}
	return mode
}

// ShouldTraceDependencies reports if per-call dependency spans should be emitted.
func ShouldTraceDependencies() bool {
	return TraceMode() == ModeDetailed
}

// StartDependencySpan starts a span for an outbound dependency call when
// detailed tracing is enabled. Otherwise it returns ctx with a no-op span.
func StartDependencySpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !ShouldTraceDependencies() {
		return ctx, noop.Span{}
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func clampRatio(ratio float64) float64 {
	return min(max(ratio, 0), 1)
}
