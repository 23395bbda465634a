package telemetry

import "time"

// Collector captures telemetry events emitted by a session.
//
// Implementations are called inline from the monitor tick, so they must not block.
type Collector interface {
	IncSamplePushed(strategy, provider string)
	IncPushFailed(strategy, provider string)
	IncProviderReset(provider string)
	IncStrategyAttempt(strategy string, ok bool)
	SetCadence(interval time.Duration)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncSamplePushed(string, string)  {}
func (noopCollector) IncPushFailed(string, string)    {}
func (noopCollector) IncProviderReset(string)         {}
func (noopCollector) IncStrategyAttempt(string, bool) {}
func (noopCollector) SetCadence(time.Duration)        {}

type multi []Collector

// Multi fans out every event to all non-nil collectors.
func Multi(collectors ...Collector) Collector {
	var out multi
	for _, c := range collectors {
		if c != nil {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return Noop()
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) IncSamplePushed(strategy, provider string) {
	for _, c := range m {
		c.IncSamplePushed(strategy, provider)
	}
}

func (m multi) IncPushFailed(strategy, provider string) {
	for _, c := range m {
		c.IncPushFailed(strategy, provider)
	}
}

func (m multi) IncProviderReset(provider string) {
	for _, c := range m {
		c.IncProviderReset(provider)
	}
}

func (m multi) IncStrategyAttempt(strategy string, ok bool) {
	for _, c := range m {
		c.IncStrategyAttempt(strategy, ok)
	}
}

func (m multi) SetCadence(interval time.Duration) {
	for _, c := range m {
		c.SetCadence(interval)
	}
}
