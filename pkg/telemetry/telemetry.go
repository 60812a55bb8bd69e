package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/killallgit/chatstream/pkg/config"
	"github.com/killallgit/chatstream/pkg/logger"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// InstrumentationName scopes the tracer and meter handed out by Init.
const InstrumentationName = "github.com/killallgit/chatstream"

const exportInterval = 10 * time.Second

// Provider bundles the tracer and meter used by the request controller.
type Provider struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans and metrics and closes the export file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	return &Provider{
		Tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
	}
}

// Init sets up tracing and metrics exported as JSON to a rotating file, and
// installs them as the otel globals. A disabled config yields Noop.
func Init(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "chatstream"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.TraceFile), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create telemetry directory")
	}
	exportFile := &lumberjack.Logger{
		Filename:   cfg.TraceFile,
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(exportFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace exporter")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(exportFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create metric exporter")
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(exportInterval)),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	log := logger.WithComponent("telemetry")
	log.Debug("Telemetry initialized", "file", cfg.TraceFile, "service", serviceName)

	return &Provider{
		Tracer: tp.Tracer(InstrumentationName),
		Meter:  mp.Meter(InstrumentationName),
		shutdown: func(ctx context.Context) error {
			var firstErr error
			if err := tp.Shutdown(ctx); err != nil {
				log.Error("failed to shutdown tracer provider", "error", err)
				firstErr = err
			}
			if err := mp.Shutdown(ctx); err != nil {
				log.Error("failed to shutdown meter provider", "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
			if err := exportFile.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			return firstErr
		},
	}, nil
}
