// Package telemetry configures OpenTelemetry tracing. Spans are exported
// over OTLP/HTTP when an endpoint is configured; otherwise the global no-op
// provider stays in place and instrumentation costs nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultServiceName is reported when none is configured.
const DefaultServiceName = "robobrain"

const tracesPath = "/v1/traces"

// Config is the telemetry: section of the configuration file.
type Config struct {
	// Endpoint is the OTLP/HTTP collector base URL, for example
	// http://localhost:4318. Empty disables export.
	Endpoint string `yaml:"endpoint"`

	ServiceName string `yaml:"service_name"`

	// Insecure sends plain HTTP. An http:// endpoint implies it.
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`

	// SampleRatio is the fraction of root traces kept. Zero means 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Enabled reports whether spans are exported.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Validate checks the endpoint and sampling ratio.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry: endpoint %q must be an http(s) URL", c.Endpoint))
		}
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample_ratio %v must be within [0, 1]", c.SampleRatio))
	}
	return errors.Join(errs...)
}

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

// Setup installs the global tracer provider and W3C trace-context
// propagation. The returned function must be called on exit.
func Setup(ctx context.Context, cfg Config, version string, logger *slog.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Endpoint is a base URL, like OTEL_EXPORTER_OTLP_ENDPOINT: the signal
	// path is appended.
	u, _ := url.Parse(cfg.Endpoint)
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithURLPath(path.Join("/", u.Path, tracesPath)),
	}
	if cfg.Insecure || u.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	))
	if err != nil {
		logger.Warn("telemetry: resource detection failed, using default", "error", err)
		res = resource.Default()
	}

	ratio := cfg.SampleRatio
	if ratio == 0 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("telemetry: exporting traces", "endpoint", cfg.Endpoint, "service", name, "sample_ratio", ratio)
	return tp.Shutdown, nil
}
