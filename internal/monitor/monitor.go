package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/internal/synth"
	"github.com/mockloc/mockloc/internal/telemetry"
	"github.com/mockloc/mockloc/pkg/core"
)

// DefaultDriftThreshold is the distance in meters between the reported fix and
// the target above which a provider is considered overridden.
const DefaultDriftThreshold = 100.0

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Driver    *provider.Driver
	Synth     *synth.Synthesizer
	Target    func() core.TargetLocation
	Strategy  string
	Telemetry telemetry.Collector
	Logger    *slog.Logger

	DriftThreshold float64
	BaseInterval   time.Duration
	BoostInterval  time.Duration
	// Boosted reports whether network interference is currently active.
	Boosted func() bool

	// OnFatal is called once when the platform becomes unavailable.
	OnFatal func(error)
	// OnDrift is called for each provider found away from the target.
	OnDrift func(providerID string, meters float64)
	// OnLost is called for each provider the platform no longer accepts
	// samples for.
	OnLost func(providerID string, cause error)
	// OnReset is called after a provider was re-registered.
	OnReset func(providerID string)

	Now func() time.Time
}

// Status is a snapshot of the monitor counters.
type Status struct {
	Ticks     int64
	Refreshes int64
	Resets    int64
	LastTick  time.Time
	Interval  time.Duration
	Failed    bool
}

// Service keeps the synthetic providers authoritative.
type Service struct {
	deps Dependencies

	// run serializes Tick and Refresh
	run sync.Mutex

	mu        sync.RWMutex
	status    Status
	fatalOnce sync.Once
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.DriftThreshold <= 0 {
		deps.DriftThreshold = DefaultDriftThreshold
	}
	if deps.BaseInterval <= 0 {
		deps.BaseInterval = 2 * time.Second
	}
	if deps.BoostInterval <= 0 || deps.BoostInterval > deps.BaseInterval {
		deps.BoostInterval = min(time.Second, deps.BaseInterval)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Noop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// Cadence returns the interval until the next tick.
func (s *Service) Cadence() time.Duration {
	interval := s.deps.BaseInterval
	if s.deps.Boosted != nil && s.deps.Boosted() {
		interval = s.deps.BoostInterval
	}

	s.mu.Lock()
	changed := s.status.Interval != interval
	s.status.Interval = interval
	s.mu.Unlock()

	if changed {
		s.deps.Telemetry.SetCadence(interval)
		s.deps.Logger.Debug("monitor cadence changed", "interval", interval)
	}
	return interval
}

// Status returns the current counters.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Resets returns how many times drift or a lost provider forced a re-registration.
func (s *Service) Resets() int64 {
	return s.Status().Resets
}

// Refresh pushes a fresh sample to every enabled provider without checking drift.
func (s *Service) Refresh(ctx context.Context) error {
	s.run.Lock()
	defer s.run.Unlock()

	for _, h := range s.enabled() {
		if err := s.push(ctx, h); err != nil && s.fatal(err) {
			return err
		}
	}

	s.mu.Lock()
	s.status.Refreshes++
	s.mu.Unlock()
	return nil
}

// Tick pushes to every enabled provider, then checks what the platform reports
// and re-registers providers that drifted from the target.
func (s *Service) Tick(ctx context.Context) error {
	s.run.Lock()
	defer s.run.Unlock()

	now := s.deps.Now()
	stale := make(map[string]bool)
	for _, h := range s.deps.Driver.Stale(now, 2*s.deps.BaseInterval) {
		stale[h.ID] = true
	}

	target := s.deps.Target()
	for _, h := range s.enabled() {
		if err := s.push(ctx, h); err != nil {
			if s.fatal(err) {
				return err
			}
			// a provider the platform dropped, or one that has not accepted a
			// sample for two intervals, is registered again
			if lost(err) || stale[h.ID] {
				if err := s.reclaim(ctx, h, err); err != nil {
					return err
				}
			}
			continue
		}

		reported, ok, err := s.deps.Driver.LastKnown(ctx, h.ID)
		if err != nil {
			if s.fatal(err) {
				return err
			}
			if lost(err) {
				if err := s.reclaim(ctx, h, err); err != nil {
					return err
				}
				continue
			}
			s.deps.Logger.Warn("failed to read reported location", "provider", h.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		drift := geo.Distance(reported.Latitude, reported.Longitude, target.Latitude, target.Longitude)
		if drift <= s.deps.DriftThreshold {
			continue
		}

		s.countReset(h.ID)
		s.deps.Logger.Warn("provider drifted from target", "provider", h.ID, "meters", drift)
		if s.deps.OnDrift != nil {
			s.deps.OnDrift(h.ID, drift)
		}

		// the push above replaced LastSample
		if fresh, ok := s.deps.Driver.Handle(h.ID); ok {
			h = fresh
		}
		if err := s.reset(ctx, h); err != nil {
			if s.fatal(err) {
				return err
			}
			s.deps.Logger.Error("failed to reset provider", "provider", h.ID, "error", err)
		}
	}

	s.mu.Lock()
	s.status.Ticks++
	s.status.LastTick = now
	s.mu.Unlock()
	return nil
}

// lost reports whether err means the platform no longer knows the provider.
func lost(err error) bool {
	return errors.Is(err, provider.ErrUnknownProvider) || errors.Is(err, provider.ErrProviderConflict)
}

// reclaim re-registers a provider the platform stopped accepting samples for.
// Only a fatal error is returned.
func (s *Service) reclaim(ctx context.Context, h core.ProviderHandle, cause error) error {
	s.countReset(h.ID)
	s.deps.Logger.Warn("provider lost", "provider", h.ID, "error", cause)
	if s.deps.OnLost != nil {
		s.deps.OnLost(h.ID, cause)
	}

	if err := s.reset(ctx, h); err != nil {
		if s.fatal(err) {
			return err
		}
		s.deps.Logger.Error("failed to reset provider", "provider", h.ID, "error", err)
	}
	return nil
}

func (s *Service) countReset(id string) {
	s.mu.Lock()
	s.status.Resets++
	s.mu.Unlock()
	s.deps.Telemetry.IncProviderReset(id)
}

func (s *Service) enabled() []core.ProviderHandle {
	var out []core.ProviderHandle
	for _, h := range s.deps.Driver.Handles() {
		if h.Enabled {
			out = append(out, h)
		}
	}
	return out
}

func (s *Service) push(ctx context.Context, h core.ProviderHandle) error {
	var elapsed time.Duration
	if h.LastSample != nil {
		elapsed = s.deps.Now().Sub(h.LastSample.Time)
	}
	sample := s.deps.Synth.Synthesize(h.LastSample, s.deps.Target(), h.Kind, elapsed)

	if err := s.deps.Driver.Push(ctx, h.ID, sample); err != nil {
		s.deps.Telemetry.IncPushFailed(s.deps.Strategy, h.ID)
		s.deps.Logger.Warn("push failed", "provider", h.ID, "error", err)
		return err
	}
	s.deps.Telemetry.IncSamplePushed(s.deps.Strategy, h.ID)
	return nil
}

// pushReset pushes the first sample of a re-registered provider. It repeats
// the last accepted fix when that is still on target so speed and accuracy
// carry over.
func (s *Service) pushReset(ctx context.Context, h core.ProviderHandle) error {
	prev := h.LastSample
	if prev == nil {
		return s.push(ctx, h)
	}
	target := s.deps.Target()
	if geo.Distance(prev.Latitude, prev.Longitude, target.Latitude, target.Longitude) > s.deps.DriftThreshold {
		return s.push(ctx, h)
	}

	sample := s.deps.Synth.Reassert(*prev, s.deps.Now().Sub(prev.Time))
	if err := s.deps.Driver.Push(ctx, h.ID, sample); err != nil {
		s.deps.Telemetry.IncPushFailed(s.deps.Strategy, h.ID)
		return err
	}
	s.deps.Telemetry.IncSamplePushed(s.deps.Strategy, h.ID)
	return nil
}

// reset runs the full unregister, register, enable, push cycle for one provider.
func (s *Service) reset(ctx context.Context, h core.ProviderHandle) error {
	d := s.deps.Driver
	if err := d.Unregister(ctx, h.ID); err != nil {
		return fmt.Errorf("unregistering: %w", err)
	}
	if err := d.Register(ctx, h.ID, h.Kind, h.Capabilities); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	if err := d.SetEnabled(ctx, h.ID, true); err != nil {
		return fmt.Errorf("enabling: %w", err)
	}
	if err := s.pushReset(ctx, h); err != nil {
		return fmt.Errorf("pushing: %w", err)
	}

	s.deps.Logger.Info("provider reset", "provider", h.ID)
	if s.deps.OnReset != nil {
		s.deps.OnReset(h.ID)
	}
	return nil
}

// fatal reports whether err means the platform is gone, notifying OnFatal once.
func (s *Service) fatal(err error) bool {
	if !errors.Is(err, provider.ErrPlatformUnavailable) {
		return false
	}
	s.fatalOnce.Do(func() {
		s.mu.Lock()
		s.status.Failed = true
		s.mu.Unlock()

		s.deps.Logger.Error("location platform unavailable", "error", err)
		if s.deps.OnFatal != nil {
			s.deps.OnFatal(err)
		}
	})
	return true
}
