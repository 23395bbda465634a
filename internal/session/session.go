// Package session owns the mutable state of one spoofing run: the target, the
// active strategy, its providers and the periodic tasks keeping them alive.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/events"
	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/interference"
	"github.com/mockloc/mockloc/internal/monitor"
	"github.com/mockloc/mockloc/internal/profile"
	"github.com/mockloc/mockloc/internal/scheduler"
	"github.com/mockloc/mockloc/internal/strategy"
	"github.com/mockloc/mockloc/internal/telemetry"
	"github.com/mockloc/mockloc/pkg/core"
)

// ErrNotActive is returned by operations that need an active strategy.
var ErrNotActive = errors.New("session not active")

// Dependencies holds everything a Session needs.
type Dependencies struct {
	Selector  *strategy.Selector
	Profiles  *profile.Registry
	Device    core.DeviceInfo
	Network   interference.NetworkSource
	Config    config.SessionConfig
	Telemetry telemetry.Collector
	Events    events.Sink
	Logger    *slog.Logger
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ID           string
	AppID        string
	Strategy     core.StrategyKind
	Target       core.TargetLocation
	Plan         profile.Plan
	Providers    []core.ProviderHandle
	Monitor      monitor.Status
	Interference core.InterferenceState
	StartedAt    time.Time
	LastError    error
}

// Session is the single owner of mutable spoofing state. All transitions go
// through its mutex; the target has its own lock so periodic tasks can read it
// while a transition waits for them.
type Session struct {
	deps Dependencies
	id   string

	targetMu sync.RWMutex
	target   core.TargetLocation

	// kind mirrors the active strategy for lock-free reads
	kind atomic.Int32

	mu        sync.Mutex
	appID     string
	plan      profile.Plan
	active    *strategy.Activation
	sched     *scheduler.Scheduler
	mon       *monitor.Service
	interf    *interference.Handler
	startedAt time.Time
	lastErr   error
	// fallbacks tracks in-flight fallback goroutines
	fallbacks sync.WaitGroup
}

// New creates an inactive session.
func New(deps Dependencies) *Session {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Noop()
	}
	if deps.Events == nil {
		deps.Events = events.NewFanout()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.StopTimeout <= 0 {
		deps.Config.StopTimeout = time.Second
	}
	if deps.Config.InterferenceInterval <= 0 {
		deps.Config.InterferenceInterval = 2 * time.Second
	}
	id := uuid.NewString()
	deps.Logger = deps.Logger.With("session", id)
	return &Session{deps: deps, id: id}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Target returns the current target.
func (s *Session) Target() core.TargetLocation {
	s.targetMu.RLock()
	defer s.targetMu.RUnlock()
	return s.target
}

// Strategy returns the active strategy kind, or StrategyInactive. It does not
// take the session lock, so log handlers may call it.
func (s *Session) Strategy() core.StrategyKind {
	return core.StrategyKind(s.kind.Load())
}

func (s *Session) setActive(act *strategy.Activation) {
	s.active = act
	if act == nil {
		s.kind.Store(int32(core.StrategyInactive))
		return
	}
	s.kind.Store(int32(act.Strategy.Kind()))
}

func (s *Session) kindLocked() core.StrategyKind {
	if s.active == nil {
		return core.StrategyInactive
	}
	return s.active.Strategy.Kind()
}

// Start resolves the plan for appID, activates the best available strategy and
// starts the periodic tasks. A running session is fully stopped first.
func (s *Session) Start(ctx context.Context, appID string, target core.TargetLocation) error {
	if err := validateTarget(target); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if err := s.stopLocked(ctx); err != nil {
			s.deps.Logger.Warn("previous run did not stop cleanly", "error", err)
		}
	}

	s.setTarget(target)
	s.appID = appID
	s.plan = s.deps.Profiles.Resolve(appID, s.deps.Device)
	s.lastErr = nil

	s.deps.Logger.Info("starting session",
		"app", appID, "device", s.plan.Device, "order", fmt.Sprint(s.plan.StrategyOrder))

	return s.activateLocked(ctx, s.plan.StrategyOrder)
}

func (s *Session) activateLocked(ctx context.Context, order []core.StrategyKind) error {
	target := s.Target()
	act, err := s.deps.Selector.Activate(ctx, order, target, strategy.ForceJitter(s.plan.Jitter))
	if err != nil {
		var exhausted *strategy.ExhaustedError
		if errors.As(err, &exhausted) {
			s.emitFailures(exhausted.Failures)
		}
		s.lastErr = err
		s.emit(core.Event{Kind: core.EventExhausted, Detail: err.Error()})
		return err
	}
	s.emitFailures(act.Failures)

	s.setActive(act)
	s.startedAt = time.Now()
	if err := s.startTasksLocked(act); err != nil {
		s.lastErr = err
		if cerr := act.Driver.Close(ctx); cerr != nil {
			s.deps.Logger.Error("failed to unregister providers", "error", cerr)
		}
		s.setActive(nil)
		return err
	}

	s.emit(core.Event{
		Kind:     core.EventStrategyActivated,
		Strategy: act.Strategy.Kind().String(),
		Detail:   act.Strategy.Backend().Name(),
		Fields: map[string]string{
			"app": s.appID,
			"lat": formatCoord(target.Latitude),
			"lng": formatCoord(target.Longitude),
		},
	})
	return nil
}

func (s *Session) emitFailures(failures []strategy.Failure) {
	for _, f := range failures {
		if errors.Is(f.Err, strategy.ErrNotConfigured) {
			continue
		}
		s.emit(core.Event{Kind: core.EventStrategyFailed, Strategy: f.Kind.String(), Detail: f.Err.Error()})
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (s *Session) startTasksLocked(act *strategy.Activation) error {
	kind := act.Strategy.Kind()
	logger := s.deps.Logger.With("strategy", kind.String())

	s.interf = nil
	if s.deps.Network != nil {
		s.interf = interference.New(s.deps.Network, s.plan.TolerateNetwork, s.onInterference, logger.With("component", "interference"))
	}

	s.mon = monitor.NewService(monitor.Dependencies{
		Driver:         act.Driver,
		Synth:          act.Synth,
		Target:         s.Target,
		Strategy:       kind.String(),
		Telemetry:      s.deps.Telemetry,
		Logger:         logger.With("component", "monitor"),
		DriftThreshold: s.deps.Config.DriftThreshold,
		BaseInterval:   s.plan.MonitorInterval,
		BoostInterval:  s.deps.Config.BoostInterval,
		Boosted:        s.boosted(s.interf),
		OnFatal:        func(err error) { s.fallBack(act, err) },
		OnDrift: func(id string, meters float64) {
			s.emit(core.Event{
				Kind:     core.EventDrift,
				Strategy: kind.String(),
				Provider: id,
				Fields:   map[string]string{"meters": strconv.FormatFloat(meters, 'f', 1, 64)},
			})
		},
		OnLost: func(id string, cause error) {
			s.emit(core.Event{
				Kind:     core.EventDrift,
				Strategy: kind.String(),
				Provider: id,
				Detail:   cause.Error(),
			})
		},
		OnReset: func(id string) {
			s.emit(core.Event{Kind: core.EventReset, Strategy: kind.String(), Provider: id})
		},
	})

	mon := s.mon
	tasks := []scheduler.Task{{
		Name:    "monitor",
		Every:   s.plan.MonitorInterval,
		Cadence: mon.Cadence,
		Run:     mon.Tick,
	}}
	if s.interf != nil {
		tasks = append(tasks, scheduler.Task{
			Name:      "interference",
			Every:     s.deps.Config.InterferenceInterval,
			Immediate: true,
			Run:       s.interf.Poll,
		})
	}
	if burst := s.plan.Burst; burst.Enabled() {
		until := time.Now().Add(burst.Window)
		tasks = append(tasks, scheduler.Task{
			Name:  "burst",
			Every: burst.Interval,
			Run: func(ctx context.Context) error {
				if time.Now().After(until) {
					return scheduler.ErrDone
				}
				return mon.Refresh(ctx)
			},
		})
	}

	sched, err := scheduler.New(logger.With("component", "scheduler"), tasks...)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.Start(context.Background())
	s.sched = sched
	return nil
}

func (s *Session) boosted(h *interference.Handler) func() bool {
	if h == nil {
		return nil
	}
	return h.Active
}

func (s *Session) onInterference(c interference.Change) {
	s.emit(core.Event{
		Kind:   core.EventInterference,
		Detail: string(c.Signal),
		Fields: map[string]string{
			"rising":    strconv.FormatBool(c.Rising),
			"tolerated": strconv.FormatBool(c.Tolerated),
		},
	})
}

// SetTarget replaces the target and pushes it to every provider at once.
func (s *Session) SetTarget(ctx context.Context, target core.TargetLocation) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	s.setTarget(target)

	s.mu.Lock()
	mon := s.mon
	active := s.active != nil
	s.mu.Unlock()

	s.emit(core.Event{
		Kind: core.EventTargetChanged,
		Fields: map[string]string{
			"lat": formatCoord(target.Latitude),
			"lng": formatCoord(target.Longitude),
		},
	})

	if !active || mon == nil {
		return nil
	}
	return mon.Refresh(ctx)
}

func (s *Session) setTarget(target core.TargetLocation) {
	if target.CreatedAt.IsZero() {
		target.CreatedAt = time.Now()
	}
	s.targetMu.Lock()
	s.target = target
	s.targetMu.Unlock()
}

// Stop halts the periodic tasks and unregisters every provider. Stopping an
// inactive session does nothing.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil
	}
	return s.stopLocked(ctx)
}

func (s *Session) stopLocked(ctx context.Context) error {
	kind := s.kindLocked()

	var errs []error
	if s.sched != nil {
		if err := s.sched.Stop(s.deps.Config.StopTimeout); err != nil {
			// proceed regardless; providers must still be removed
			s.deps.Logger.Warn("periodic tasks did not stop in time", "error", err)
			errs = append(errs, err)
		}
		s.sched = nil
	}

	if err := s.active.Driver.Close(ctx); err != nil {
		s.deps.Logger.Error("failed to unregister providers", "error", err)
		errs = append(errs, err)
	}

	s.setActive(nil)
	s.mon = nil
	s.interf = nil

	s.emit(core.Event{Kind: core.EventStopped, Strategy: kind.String()})
	s.deps.Logger.Info("session stopped", "strategy", kind)
	return errors.Join(errs...)
}

// fallBack replaces an activation whose platform became unavailable with the
// next lower-priority strategy. It runs off the monitor goroutine because
// stopping waits for that goroutine.
func (s *Session) fallBack(act *strategy.Activation, cause error) {
	failed := act.Strategy.Kind()
	s.fallbacks.Add(1)
	go func() {
		defer s.fallbacks.Done()

		s.mu.Lock()
		defer s.mu.Unlock()

		// stopped or restarted since the error was reported
		if s.active != act {
			return
		}

		s.deps.Logger.Warn("strategy lost platform, falling back", "strategy", failed, "error", cause)
		s.emit(core.Event{Kind: core.EventStrategyFailed, Strategy: failed.String(), Detail: cause.Error()})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.stopLocked(ctx); err != nil {
			s.deps.Logger.Warn("failed strategy did not stop cleanly", "error", err)
		}

		remaining := after(s.plan.StrategyOrder, failed)
		if len(remaining) == 0 {
			err := &strategy.ExhaustedError{Failures: []strategy.Failure{{Kind: failed, Err: cause}}}
			s.lastErr = err
			s.emit(core.Event{Kind: core.EventExhausted, Detail: err.Error()})
			return
		}
		if err := s.activateLocked(ctx, remaining); err != nil {
			s.deps.Logger.Error("fallback failed", "error", err)
		}
	}()
}

// WaitFallbacks blocks until no fallback is in progress.
func (s *Session) WaitFallbacks() {
	s.fallbacks.Wait()
}

func after(order []core.StrategyKind, kind core.StrategyKind) []core.StrategyKind {
	for i, k := range order {
		if k == kind {
			return append([]core.StrategyKind(nil), order[i+1:]...)
		}
	}
	return nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		AppID:     s.appID,
		Strategy:  s.kindLocked(),
		Target:    s.Target(),
		Plan:      s.plan,
		StartedAt: s.startedAt,
		LastError: s.lastErr,
	}
	if s.active != nil {
		snap.Providers = s.active.Driver.Handles()
	}
	if s.mon != nil {
		snap.Monitor = s.mon.Status()
	}
	if s.interf != nil {
		snap.Interference = s.interf.State()
	}
	return snap
}

func (s *Session) emit(e core.Event) {
	e.SessionID = s.id
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.deps.Events.Publish(e)
}

func validateTarget(t core.TargetLocation) error {
	if err := geo.Validate(t.Latitude, t.Longitude); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	return nil
}
