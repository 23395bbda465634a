package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mockloc/mockloc/pkg/core"
)

// Option configures a Driver.
type Option func(*Driver)

// WithJournal records every registration in j.
func WithJournal(j Journal) Option {
	return func(d *Driver) {
		d.journal = j
	}
}

// WithObserver adds an observer notified after each successful push.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observers = append(d.observers, o)
	}
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

type stamp struct {
	wall      time.Time
	monotonic time.Duration
}

// Driver registers synthetic providers with a Backend and pushes samples to them.
// Operations on the same id are serialized; different ids proceed independently.
type Driver struct {
	backend   Backend
	journal   Journal
	observers []Observer
	logger    *slog.Logger

	mu      sync.Mutex
	handles map[string]*core.ProviderHandle
	locks   map[string]*sync.Mutex
	// last survives Unregister so a re-registered id cannot go back in time.
	last map[string]stamp
}

// NewDriver creates a Driver for the given backend.
func NewDriver(backend Backend, opts ...Option) *Driver {
	d := &Driver{
		backend: backend,
		logger:  slog.Default(),
		handles: make(map[string]*core.ProviderHandle),
		locks:   make(map[string]*sync.Mutex),
		last:    make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Backend returns the platform backend the driver talks to.
func (d *Driver) Backend() Backend {
	return d.backend
}

func (d *Driver) lock(id string) func() {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (d *Driver) lookup(id string) (*core.ProviderHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handles[id]
	return h, ok
}

// Register creates a provider with the given id and capabilities.
func (d *Driver) Register(ctx context.Context, id string, kind core.ProviderKind, caps core.Capabilities) error {
	unlock := d.lock(id)
	defer unlock()

	if _, ok := d.lookup(id); ok {
		return fmt.Errorf("%s: %w", id, ErrAlreadyRegistered)
	}

	if err := d.backend.CheckPermission(ctx); err != nil {
		return fmt.Errorf("registering %s on %s: %w", id, d.backend.Name(), err)
	}

	if err := d.backend.Register(ctx, id, caps); err != nil {
		if !errors.Is(err, ErrProviderConflict) {
			return fmt.Errorf("registering %s on %s: %w", id, d.backend.Name(), err)
		}
		// The platform already lists the id; take it over.
		d.logger.Warn("provider already listed by platform, adopting", "provider", id, "backend", d.backend.Name())
	}

	if d.journal != nil {
		if err := d.journal.Record(d.backend.Name(), id); err != nil {
			d.logger.Warn("failed to journal registration", "provider", id, "error", err)
		}
	}

	d.mu.Lock()
	d.handles[id] = &core.ProviderHandle{
		ID:           id,
		Kind:         kind,
		Capabilities: caps,
		RegisteredAt: time.Now(),
	}
	d.mu.Unlock()

	d.logger.Debug("provider registered", "provider", id, "backend", d.backend.Name())
	return nil
}

// SetEnabled enables or disables a registered provider.
func (d *Driver) SetEnabled(ctx context.Context, id string, enabled bool) error {
	unlock := d.lock(id)
	defer unlock()

	h, ok := d.lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownProvider)
	}

	if err := d.backend.SetEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("setting %s enabled=%t: %w", id, enabled, err)
	}

	d.mu.Lock()
	h.Enabled = enabled
	d.mu.Unlock()
	return nil
}

// Push delivers a sample to a registered provider. Both timestamps must be
// strictly greater than those of the previous sample pushed for the id.
func (d *Driver) Push(ctx context.Context, id string, sample core.LocationSample) error {
	unlock := d.lock(id)
	defer unlock()

	h, ok := d.lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownProvider)
	}

	d.mu.Lock()
	prev, seen := d.last[id]
	d.mu.Unlock()
	if seen && (!sample.Time.After(prev.wall) || sample.ElapsedRealtime <= prev.monotonic) {
		return fmt.Errorf("%s: %w", id, ErrStaleSample)
	}

	sample.Provider = id
	if err := d.backend.Push(ctx, id, sample); err != nil {
		return fmt.Errorf("pushing to %s: %w", id, err)
	}

	d.mu.Lock()
	d.last[id] = stamp{wall: sample.Time, monotonic: sample.ElapsedRealtime}
	s := sample
	h.LastSample = &s
	d.mu.Unlock()

	for _, o := range d.observers {
		o.SamplePushed(d.backend.Name(), sample)
	}
	return nil
}

// Unregister removes a provider. Unknown ids are ignored.
func (d *Driver) Unregister(ctx context.Context, id string) error {
	unlock := d.lock(id)
	defer unlock()

	if _, ok := d.lookup(id); !ok {
		return nil
	}

	err := d.backend.Unregister(ctx, id)
	if err != nil && !errors.Is(err, ErrUnknownProvider) {
		return fmt.Errorf("unregistering %s: %w", id, err)
	}

	d.mu.Lock()
	delete(d.handles, id)
	d.mu.Unlock()

	if d.journal != nil {
		if err := d.journal.Forget(d.backend.Name(), id); err != nil {
			d.logger.Warn("failed to clear journal entry", "provider", id, "error", err)
		}
	}

	d.logger.Debug("provider unregistered", "provider", id, "backend", d.backend.Name())
	return nil
}

// LastKnown asks the platform which fix it currently reports for id.
func (d *Driver) LastKnown(ctx context.Context, id string) (core.LocationSample, bool, error) {
	if _, ok := d.lookup(id); !ok {
		return core.LocationSample{}, false, fmt.Errorf("%s: %w", id, ErrUnknownProvider)
	}
	return d.backend.LastKnown(ctx, id)
}

// Handles returns copies of all active handles, sorted by id.
func (d *Driver) Handles() []core.ProviderHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]core.ProviderHandle, 0, len(d.handles))
	for _, h := range d.handles {
		out = append(out, copyHandle(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Handle returns a copy of the handle for id.
func (d *Driver) Handle(id string) (core.ProviderHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handles[id]
	if !ok {
		return core.ProviderHandle{}, false
	}
	return copyHandle(h), true
}

func copyHandle(h *core.ProviderHandle) core.ProviderHandle {
	c := *h
	if h.LastSample != nil {
		s := *h.LastSample
		c.LastSample = &s
	}
	return c
}

// Stale returns enabled handles whose last sample is older than maxAge or missing.
func (d *Driver) Stale(now time.Time, maxAge time.Duration) []core.ProviderHandle {
	var out []core.ProviderHandle
	for _, h := range d.Handles() {
		if !h.Enabled {
			continue
		}
		if h.LastSample == nil || now.Sub(h.LastSample.Time) > maxAge {
			out = append(out, h)
		}
	}
	return out
}

// LastStamp returns the timestamps of the last sample accepted for id,
// including samples pushed before a re-registration.
func (d *Driver) LastStamp(id string) (time.Time, time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.last[id]
	return s.wall, s.monotonic, ok
}

// Close disables and unregisters every provider the driver registered.
// All ids are attempted; failures are joined.
func (d *Driver) Close(ctx context.Context) error {
	var errs []error
	for _, h := range d.Handles() {
		if h.Enabled {
			if err := d.SetEnabled(ctx, h.ID, false); err != nil {
				d.logger.Warn("failed to disable provider", "provider", h.ID, "error", err)
			}
		}
		if err := d.Unregister(ctx, h.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecoverStale unregisters providers a previous process journaled but never
// removed. It returns the ids that were cleaned up.
func RecoverStale(ctx context.Context, backend Backend, journal Journal, logger *slog.Logger) ([]string, error) {
	ids, err := journal.Pending(backend.Name())
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	var (
		cleaned []string
		errs    []error
	)
	for _, id := range ids {
		err := backend.Unregister(ctx, id)
		if err != nil && !errors.Is(err, ErrUnknownProvider) {
			errs = append(errs, fmt.Errorf("unregistering %s: %w", id, err))
			continue
		}
		if err := journal.Forget(backend.Name(), id); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("removed stale provider", "provider", id, "backend", backend.Name())
		cleaned = append(cleaned, id)
	}
	return cleaned, errors.Join(errs...)
}
