package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/internal/synth"
	"github.com/mockloc/mockloc/internal/telemetry"
	"github.com/mockloc/mockloc/pkg/core"
)

// ErrAllStrategiesExhausted is matched by every ExhaustedError.
var ErrAllStrategiesExhausted = errors.New("all strategies exhausted")

// ErrNotConfigured is recorded for strategies with no backend.
var ErrNotConfigured = errors.New("strategy not configured")

// Failure is the reason one candidate could not be activated.
type Failure struct {
	Kind core.StrategyKind
	Err  error
}

// ExhaustedError lists why every candidate failed.
type ExhaustedError struct {
	Failures []Failure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Kind, f.Err))
	}
	return fmt.Sprintf("%v (%s)", ErrAllStrategiesExhausted, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	errs := []error{ErrAllStrategiesExhausted}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Activation is an active strategy together with the driver owning its providers.
type Activation struct {
	Strategy Strategy
	Driver   *provider.Driver
	Synth    *synth.Synthesizer
	// Failures lists the higher-priority candidates that were skipped.
	Failures []Failure
}

// Dependencies holds what the selector needs to build activations.
type Dependencies struct {
	Strategies []Strategy
	Synth      config.SynthConfig
	SynthOpts  []synth.Option
	DriverOpts []provider.Option
	Telemetry  telemetry.Collector
	Logger     *slog.Logger
	// OnFailure is called for every candidate that could not be activated.
	OnFailure func(Failure)
}

// Selector walks a priority list of strategies.
type Selector struct {
	deps       Dependencies
	strategies map[core.StrategyKind]Strategy
}

// NewSelector creates a selector over the given strategies.
func NewSelector(deps Dependencies) *Selector {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Noop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Selector{deps: deps, strategies: make(map[core.StrategyKind]Strategy)}
	for _, st := range deps.Strategies {
		s.strategies[st.Kind()] = st
	}
	return s
}

// ActivateOption adjusts a single Activate call.
type ActivateOption func(*activateOptions)

type activateOptions struct {
	jitter bool
}

// ForceJitter makes every candidate jitter its fixes, including strategies
// that normally push exact coordinates.
func ForceJitter(on bool) ActivateOption {
	return func(o *activateOptions) { o.jitter = on }
}

// Activate tries each kind in order and returns the first that activates. A
// failed candidate leaves no providers behind. When every candidate fails the
// error is an *ExhaustedError.
func (s *Selector) Activate(ctx context.Context, order []core.StrategyKind, target core.TargetLocation, opts ...ActivateOption) (*Activation, error) {
	var o activateOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(order) == 0 {
		order = core.DefaultStrategyOrder()
	}

	var failures []Failure
	for _, kind := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		act, err := s.activate(ctx, kind, target, o)
		s.deps.Telemetry.IncStrategyAttempt(kind.String(), err == nil)
		if err == nil {
			s.deps.Logger.Info("strategy activated", "strategy", kind, "backend", act.Strategy.Backend().Name())
			act.Failures = failures
			return act, nil
		}

		s.deps.Logger.Warn("strategy failed, falling back", "strategy", kind, "error", err)
		f := Failure{Kind: kind, Err: err}
		failures = append(failures, f)
		if s.deps.OnFailure != nil {
			s.deps.OnFailure(f)
		}
	}

	return nil, &ExhaustedError{Failures: failures}
}

func (s *Selector) activate(ctx context.Context, kind core.StrategyKind, target core.TargetLocation, o activateOptions) (*Activation, error) {
	st, ok := s.strategies[kind]
	if !ok {
		return nil, ErrNotConfigured
	}
	if err := st.Available(ctx); err != nil {
		return nil, err
	}

	cfg := s.deps.Synth
	if !st.Jitter() && !o.jitter {
		cfg.JitterMeters = 0
	}
	sy := synth.New(cfg, s.deps.SynthOpts...)
	opts := append([]provider.Option{provider.WithLogger(s.deps.Logger)}, s.deps.DriverOpts...)
	driver := provider.NewDriver(st.Backend(), opts...)

	if err := bringUp(ctx, driver, sy, st, target, s.deps.Logger); err != nil {
		if cerr := driver.Close(ctx); cerr != nil {
			s.deps.Logger.Error("rollback incomplete", "strategy", kind, "error", cerr)
		}
		return nil, err
	}

	return &Activation{Strategy: st, Driver: driver, Synth: sy}, nil
}

func bringUp(ctx context.Context, d *provider.Driver, sy *synth.Synthesizer, st Strategy, target core.TargetLocation, logger *slog.Logger) error {
	for _, kind := range st.Providers() {
		id := string(kind)
		err := d.Register(ctx, id, kind, core.CapabilitiesFor(kind))
		if errors.Is(err, provider.ErrAlreadyRegistered) {
			logger.Info("provider already active", "provider", id)
			continue
		}
		if err != nil {
			return err
		}
		if err := d.SetEnabled(ctx, id, true); err != nil {
			return err
		}
		if err := d.Push(ctx, id, sy.Synthesize(nil, target, kind, 0)); err != nil {
			return err
		}
	}
	return nil
}
