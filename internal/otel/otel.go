package otel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/ankittk/releasekit"

// Provider owns a MeterProvider whose readings are exported to a private
// Prometheus registry. releasekit runs as a short-lived CI step, so the
// registry is written to a textfile instead of being scraped.
type Provider struct {
	reg *prometheus.Registry
	mp  *sdkmetric.MeterProvider
}

// InitMeterProvider builds a MeterProvider with a Prometheus exporter.
func InitMeterProvider(ctx context.Context, serviceName string) (*Provider, error) {
	if serviceName == "" {
		serviceName = "releasekit"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return &Provider{reg: reg, mp: mp}, nil
}

// Meter returns the releasekit meter.
func (p *Provider) Meter() metric.Meter {
	return p.mp.Meter(meterName)
}

// Registry exposes the Prometheus registry the exporter writes to.
func (p *Provider) Registry() *prometheus.Registry {
	return p.reg
}

// WriteTextfile writes the current readings in Prometheus text format
// (for node_exporter's textfile collector).
func (p *Provider) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the MeterProvider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

// Common attribute keys for metrics.
var (
	AttrBranch    = attribute.Key("branch")
	AttrOperation = attribute.Key("operation")
	AttrResult    = attribute.Key("result")
	AttrChannel   = attribute.Key("channel")
	AttrRule      = attribute.Key("rule")
)
