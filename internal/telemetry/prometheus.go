package telemetry

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes session counters via Prometheus.
type PrometheusCollector struct {
	samplesPushed    *prometheus.CounterVec
	pushFailures     *prometheus.CounterVec
	providerResets   *prometheus.CounterVec
	strategyAttempts *prometheus.CounterVec
	cadence          prometheus.Gauge
}

// NewPrometheusCollector registers the required metrics with the provided registerer.
// Metrics already registered on reg are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusCollector{}
	var err error

	if p.samplesPushed, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "mockloc_samples_pushed_total",
		Help: "Number of samples accepted by synthetic providers.",
	}, "strategy", "provider"); err != nil {
		return nil, err
	}
	if p.pushFailures, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "mockloc_push_failures_total",
		Help: "Number of samples the platform rejected.",
	}, "strategy", "provider"); err != nil {
		return nil, err
	}
	if p.providerResets, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "mockloc_provider_resets_total",
		Help: "Number of forced re-registrations after drift was detected.",
	}, "provider"); err != nil {
		return nil, err
	}
	if p.strategyAttempts, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "mockloc_strategy_attempts_total",
		Help: "Number of strategy activation attempts by outcome.",
	}, "strategy", "ok"); err != nil {
		return nil, err
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mockloc_monitor_interval_seconds",
		Help: "Current persistence monitor interval.",
	})
	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, err
		}
		gauge = existing
	}
	p.cadence = gauge

	return p, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// IncSamplePushed counts an accepted sample.
func (p *PrometheusCollector) IncSamplePushed(strategy, provider string) {
	if p == nil {
		return
	}
	p.samplesPushed.WithLabelValues(strategy, provider).Inc()
}

// IncPushFailed counts a rejected sample.
func (p *PrometheusCollector) IncPushFailed(strategy, provider string) {
	if p == nil {
		return
	}
	p.pushFailures.WithLabelValues(strategy, provider).Inc()
}

// IncProviderReset counts a drift-triggered re-registration.
func (p *PrometheusCollector) IncProviderReset(provider string) {
	if p == nil {
		return
	}
	p.providerResets.WithLabelValues(provider).Inc()
}

// IncStrategyAttempt counts an activation attempt.
func (p *PrometheusCollector) IncStrategyAttempt(strategy string, ok bool) {
	if p == nil {
		return
	}
	p.strategyAttempts.WithLabelValues(strategy, strconv.FormatBool(ok)).Inc()
}

// SetCadence records the monitor interval.
func (p *PrometheusCollector) SetCadence(interval time.Duration) {
	if p == nil {
		return
	}
	p.cadence.Set(interval.Seconds())
}
