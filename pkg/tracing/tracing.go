// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package tracing wires OpenTelemetry tracing for api-catalog.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ServiceName is the OTEL service name reported by api-catalog.
	ServiceName = "api-catalog"

	// TracerName is the instrumentation scope used for all discovery spans.
	TracerName = "github.com/telekom/api-catalog"

	// shutdownTimeout bounds how long Shutdown waits for pending spans to be exported.
	shutdownTimeout = 5 * time.Second
)

// Config holds the tracing settings.
type Config struct {
	// Enabled turns span export on.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP gRPC collector address, e.g. "otel-collector:4317".
	Endpoint string `koanf:"endpoint"`

	// SamplingRate is the fraction of root spans sampled, between 0.0 and 1.0.
	SamplingRate float64 `koanf:"sampling_rate"`

	// Insecure disables TLS towards the collector.
	Insecure bool `koanf:"insecure"`
}

// Validate checks the settings that matter when tracing is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("tracing endpoint must be set when tracing is enabled")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0.0 and 1.0, got %f", c.SamplingRate)
	}
	return nil
}

// Provider owns the tracer provider created by Setup.
type Provider struct {
	tp     trace.TracerProvider
	tracer trace.Tracer
}

// Tracer returns the tracer of this provider.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes and stops the SDK provider. A fresh context is used because the caller's
// context is usually already canceled during process shutdown.
func (p *Provider) Shutdown(_ context.Context) error {
	sdkTP, ok := p.tp.(*sdktrace.TracerProvider)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sdkTP.Shutdown(ctx)
}

// Setup creates the tracer provider for cfg and registers it globally.
// A disabled config yields a no-op provider and leaves the global provider untouched.
func Setup(ctx context.Context, cfg Config, version string) (*Provider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		return &Provider{tp: tp, tracer: tp.Tracer(TracerName)}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTEL resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer(TracerName)}, nil
}

// Tracer returns the api-catalog tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Span attribute keys used by the discovery engine.
var (
	AttrEndpointCount   = attribute.Key("api_catalog.endpoint_count")
	AttrBatchIndex      = attribute.Key("api_catalog.batch_index")
	AttrBatchSize       = attribute.Key("api_catalog.batch_size")
	AttrFailedEndpoints = attribute.Key("api_catalog.failed_endpoints")
	AttrResourceCount   = attribute.Key("api_catalog.resource_count")
	AttrModelCount      = attribute.Key("api_catalog.model_count")
	AttrCacheBackend    = attribute.Key("api_catalog.cache_backend")
	AttrPath            = attribute.Key("api_catalog.path")
)
