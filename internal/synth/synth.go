// Package synth produces plausible location samples around a target.
package synth

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/pkg/core"
)

// DefaultMaxSpeed is the speed ceiling in m/s used when none is configured.
const DefaultMaxSpeed = 50.0

// minElapsed keeps timestamps strictly increasing when callers pass zero.
const minElapsed = time.Millisecond

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithRand replaces the random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Synthesizer) {
		s.rng = r
	}
}

// WithClock replaces the wall clock used for the first sample of a provider.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// Synthesizer builds samples. It is safe for concurrent use.
type Synthesizer struct {
	cfg   config.SynthConfig
	now   func() time.Time
	start time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Synthesizer. A JitterMeters of 0 disables position jitter.
func New(cfg config.SynthConfig, opts ...Option) *Synthesizer {
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = DefaultMaxSpeed
	}
	s := &Synthesizer{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	return s
}

// Jitter reports whether positions are jittered.
func (s *Synthesizer) Jitter() bool {
	return s.cfg.JitterMeters > 0
}

// Synthesize builds the next sample for a provider of the given kind. prev is the
// last sample pushed to that provider, or nil for the first one; elapsed is the
// time since prev. The result always has timestamps greater than prev's.
func (s *Synthesizer) Synthesize(prev *core.LocationSample, target core.TargetLocation, kind core.ProviderKind, elapsed time.Duration) core.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elapsed < minElapsed {
		elapsed = minElapsed
	}

	lat, lng := target.Latitude, target.Longitude
	if s.cfg.JitterMeters > 0 {
		theta := s.rng.Float64() * 360
		r := s.cfg.JitterMeters * math.Sqrt(s.rng.Float64())
		lat, lng = geo.Destination(lat, lng, theta, r)
	}

	out := core.LocationSample{
		Latitude:  lat,
		Longitude: lng,
		Altitude:  s.altitude(target),
	}

	if prev != nil {
		dist := geo.Distance(prev.Latitude, prev.Longitude, lat, lng)
		out.Speed = math.Min(dist/elapsed.Seconds(), s.cfg.MaxSpeed)
		if dist > 0 {
			out.Bearing = geo.InitialBearing(prev.Latitude, prev.Longitude, lat, lng)
		}
		out.Time = prev.Time.Add(elapsed)
		out.ElapsedRealtime = prev.ElapsedRealtime + elapsed
	} else {
		now := s.now()
		out.Time = now
		out.ElapsedRealtime = now.Sub(s.start) + minElapsed
	}

	out.Accuracy = s.baseAccuracy(kind) * (1 + out.Speed/s.cfg.MaxSpeed) * (0.85 + 0.3*s.rng.Float64())
	return out
}

func (s *Synthesizer) altitude(target core.TargetLocation) float64 {
	alt := target.Altitude
	if alt == 0 {
		alt = s.cfg.BaseAltitude
	}
	if s.cfg.JitterMeters > 0 && s.cfg.AltitudeJitter > 0 {
		alt += (s.rng.Float64()*2 - 1) * s.cfg.AltitudeJitter
	}
	return alt
}

// baseAccuracy returns the typical horizontal accuracy in meters of a real
// provider of the given kind.
func (s *Synthesizer) baseAccuracy(kind core.ProviderKind) float64 {
	switch kind {
	case core.ProviderGPS:
		return 3 + 2*s.rng.Float64()
	case core.ProviderNetwork:
		return 25
	case core.ProviderPassive:
		return 12
	default:
		return 8
	}
}

// Reassert repeats prev at the same position, speed and bearing with timestamps
// advanced by elapsed. It is used when a provider is re-registered, so the new
// registration continues the track instead of starting a fresh one.
func (s *Synthesizer) Reassert(prev core.LocationSample, elapsed time.Duration) core.LocationSample {
	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	out := prev
	out.Provider = ""
	out.Time = prev.Time.Add(elapsed)
	out.ElapsedRealtime = prev.ElapsedRealtime + elapsed
	return out
}
