package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncSamplePushed("standard", "gps")
	collector.SetCadence(time.Second)
}

func TestMulti_SkipsNil(t *testing.T) {
	require.Equal(t, Noop(), Multi(nil, nil))

	reg := prometheus.NewRegistry()
	p, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, p, Multi(nil, p))
}

func TestPrometheusCollectorRegistersAndReusesCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncSamplePushed("standard", "gps")

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.samplesPushed, again.samplesPushed)

	again.IncSamplePushed("standard", "gps")

	mf := gather(t, reg, "mockloc_samples_pushed_total")
	require.Len(t, mf.Metric, 1)
	require.Equal(t, 2.0, mf.Metric[0].Counter.GetValue())
}

func TestPrometheusCollector_AllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	Multi(collector, Noop()).IncStrategyAttempt("privileged_fallback", false)
	collector.IncStrategyAttempt("anti_detection", true)
	collector.IncPushFailed("anti_detection", "network")
	collector.IncProviderReset("gps")
	collector.IncProviderReset("gps")
	collector.SetCadence(200 * time.Millisecond)

	attempts := gather(t, reg, "mockloc_strategy_attempts_total")
	require.Len(t, attempts.Metric, 2)

	resets := gather(t, reg, "mockloc_provider_resets_total")
	require.Equal(t, 2.0, resets.Metric[0].Counter.GetValue())

	cadence := gather(t, reg, "mockloc_monitor_interval_seconds")
	require.Equal(t, 0.2, cadence.Metric[0].Gauge.GetValue())
}

func TestOTelCollector(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	c, err := NewOTelCollector()
	require.NoError(t, err)

	c.IncSamplePushed("standard", "gps")
	c.IncSamplePushed("standard", "gps")
	c.IncProviderReset("gps")
	c.SetCadence(time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "mockloc.samples.pushed" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Equal(t, int64(2), sum.DataPoints[0].Value)
			}
		}
	}
	require.True(t, found["mockloc.samples.pushed"])
	require.True(t, found["mockloc.provider.resets"])
	require.True(t, found["mockloc.monitor.interval"])
}

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}
