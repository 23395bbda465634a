package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/mockloc/mockloc/internal/telemetry"

// OTelCollector records session counters on the global OTel meter provider.
type OTelCollector struct {
	samplesPushed    metric.Int64Counter
	pushFailures     metric.Int64Counter
	providerResets   metric.Int64Counter
	strategyAttempts metric.Int64Counter
	cadence          metric.Float64Gauge
}

// NewOTelCollector creates the instruments on the global meter (no-op if not configured).
func NewOTelCollector() (*OTelCollector, error) {
	m := otel.Meter(instrumentationName)
	c := &OTelCollector{}

	var err error
	if c.samplesPushed, err = m.Int64Counter("mockloc.samples.pushed",
		metric.WithDescription("Samples accepted by synthetic providers")); err != nil {
		return nil, fmt.Errorf("creating samples counter: %w", err)
	}
	if c.pushFailures, err = m.Int64Counter("mockloc.push.failures",
		metric.WithDescription("Samples the platform rejected")); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	if c.providerResets, err = m.Int64Counter("mockloc.provider.resets",
		metric.WithDescription("Drift-triggered re-registrations")); err != nil {
		return nil, fmt.Errorf("creating resets counter: %w", err)
	}
	if c.strategyAttempts, err = m.Int64Counter("mockloc.strategy.attempts",
		metric.WithDescription("Strategy activation attempts")); err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}
	if c.cadence, err = m.Float64Gauge("mockloc.monitor.interval",
		metric.WithUnit("s"),
		metric.WithDescription("Current persistence monitor interval")); err != nil {
		return nil, fmt.Errorf("creating cadence gauge: %w", err)
	}
	return c, nil
}

func (c *OTelCollector) IncSamplePushed(strategy, provider string) {
	c.samplesPushed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", strategy), attribute.String("provider", provider)))
}

func (c *OTelCollector) IncPushFailed(strategy, provider string) {
	c.pushFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", strategy), attribute.String("provider", provider)))
}

func (c *OTelCollector) IncProviderReset(provider string) {
	c.providerResets.Add(context.Background(), 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (c *OTelCollector) IncStrategyAttempt(strategy string, ok bool) {
	c.strategyAttempts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", strategy), attribute.Bool("ok", ok)))
}

func (c *OTelCollector) SetCadence(interval time.Duration) {
	c.cadence.Record(context.Background(), interval.Seconds())
}
