// Package tracing provides OTel tracer initialization for the
// scheduler: an otlptracehttp exporter feeding a batching
// TracerProvider when tracing is enabled, and a no-op provider (zero
// overhead) otherwise.
package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects whether tracing is active and where spans are
// exported.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Provider wraps a trace.TracerProvider together with the means to
// shut it down cleanly.
type Provider struct {
	tp  trace.TracerProvider
	sdk *sdktrace.TracerProvider
}

// New builds a Provider from cfg. When cfg.Enabled is false, or the
// exporter cannot be constructed, the returned Provider is a no-op
// (Tracer calls are free and Shutdown is a no-op).
func New(ctx context.Context, cfg Config) *Provider {
	if !cfg.Enabled {
		return &Provider{tp: noop.NewTracerProvider()}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpointHost(cfg.Endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return &Provider{tp: noop.NewTracerProvider()}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "taskscheduler"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	sdkProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdkProvider)
	return &Provider{tp: sdkProvider, sdk: sdkProvider}
}

// Tracer returns a named tracer drawn from this Provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans and shuts the provider down. A no-op
// Provider has nothing to flush.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk != nil {
		return p.sdk.Shutdown(ctx)
	}
	return nil
}

func endpointHost(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}
