// Package otel sets up the OpenTelemetry log and metric providers used by the
// simulator.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultMetricInterval = 10 * time.Second

// ErrNoSink is returned when telemetry is enabled with nowhere to send it.
var ErrNoSink = errors.New("otel enabled without a log writer or endpoint")

// Config selects where simulator telemetry goes.
type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Attributes are added to the resource, e.g. the vehicle count of the run.
	Attributes   map[string]string
	BatchTimeout time.Duration

	// LogWriter receives pretty-printed log records.
	LogWriter io.Writer
	// MetricWriter receives periodic metric dumps. Metrics stay no-op when nil.
	MetricWriter   io.Writer
	MetricInterval time.Duration

	// Endpoint is an optional OTLP/HTTP collector for log records.
	Endpoint string
	Insecure bool
}

// Provider owns the log and meter providers for one process.
type Provider struct {
	enabled bool
	logs    *sdklog.LoggerProvider
	metrics *sdkmetric.MeterProvider
}

// New builds the providers described by cfg. A disabled config yields a
// provider whose methods are no-ops. The meter provider, when created, is also
// installed as the global one so otel.Meter callers pick it up.
func New(cfg Config) (*Provider, error) {
	p := &Provider{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	processors, err := logProcessors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, proc := range processors {
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	p.logs = sdklog.NewLoggerProvider(opts...)

	if cfg.MetricWriter != nil {
		if p.metrics, err = newMeterProvider(res, cfg); err != nil {
			return nil, errors.Join(err, p.logs.Shutdown(ctx))
		}
		otel.SetMeterProvider(p.metrics)
	}
	return p, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}
	return res, nil
}

func logProcessors(ctx context.Context, cfg Config) ([]sdklog.Processor, error) {
	var exporters []sdklog.Exporter

	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating log file exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp log exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	if len(exporters) == 0 {
		return nil, ErrNoSink
	}
	processors := make([]sdklog.Processor, len(exporters))
	for i, exp := range exporters {
		processors[i] = sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))
	}
	return processors, nil
}

func newMeterProvider(res *resource.Resource, cfg Config) (*sdkmetric.MeterProvider, error) {
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.MetricWriter))
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	), nil
}

// LoggerProvider returns the provider for the otelslog bridge, nil when
// disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Meter returns a named meter, or a no-op meter when metrics are not exported.
func (p *Provider) Meter(name string) metric.Meter {
	if p.metrics == nil {
		return noop.Meter{}
	}
	return p.metrics.Meter(name)
}

// Flush pushes pending logs and metrics out. Called at the end of a run.
func (p *Provider) Flush(ctx context.Context) error {
	return p.each(ctx, "flush",
		func(ctx context.Context) error { return p.logs.ForceFlush(ctx) },
		func(ctx context.Context) error { return p.metrics.ForceFlush(ctx) })
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.each(ctx, "shutdown",
		func(ctx context.Context) error { return p.logs.Shutdown(ctx) },
		func(ctx context.Context) error { return p.metrics.Shutdown(ctx) })
}

func (p *Provider) each(ctx context.Context, op string, logs, metrics func(context.Context) error) error {
	var errs []error
	if p.logs != nil {
		if err := logs(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log %s: %w", op, err))
		}
	}
	if p.metrics != nil {
		if err := metrics(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric %s: %w", op, err))
		}
	}
	return errors.Join(errs...)
}

// Enabled reports whether telemetry was enabled in the config.
func (p *Provider) Enabled() bool {
	return p.enabled
}
