package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/pkg/core"
)

type simProvider struct {
	caps    core.Capabilities
	enabled bool
	last    *core.LocationSample
	// driftMeters displaces what the platform reports, as a competing real
	// provider would. It lasts until the provider is removed.
	driftMeters float64
}

// SimPlatform is an in-memory location subsystem. It implements LocationManager,
// Broker and the interference handler, and lets callers inject permission denial,
// drift, outages and network transport changes.
type SimPlatform struct {
	mu            sync.Mutex
	providers     map[string]*simProvider
	mockAllowed   bool
	brokerGranted bool
	outage        bool
	network       core.InterferenceState
	pushes        map[string]int
}

// NewSimPlatform creates a platform that allows mock locations and has no broker.
func NewSimPlatform() *SimPlatform {
	return &SimPlatform{
		providers:   make(map[string]*simProvider),
		pushes:      make(map[string]int),
		mockAllowed: true,
	}
}

// SetMockAllowed toggles the mock location app selection.
func (p *SimPlatform) SetMockAllowed(allowed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mockAllowed = allowed
}

// SetBrokerGranted toggles the broker capability.
func (p *SimPlatform) SetBrokerGranted(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.brokerGranted = granted
}

// SetOutage makes every call fail with provider.ErrPlatformUnavailable.
func (p *SimPlatform) SetOutage(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outage = down
}

// SetNetwork sets the network transport state reported to the interference handler.
func (p *SimPlatform) SetNetwork(state core.InterferenceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.network = state
}

// InjectDrift displaces the reported fix of name by meters to the north.
func (p *SimPlatform) InjectDrift(name string, meters float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.providers[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, provider.ErrUnknownProvider)
	}
	sp.driftMeters = meters
	return nil
}

// Providers lists the names currently registered on the platform.
func (p *SimPlatform) Providers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.providers))
	for name := range p.providers {
		names = append(names, name)
	}
	return names
}

// Enabled reports whether name is registered and enabled.
func (p *SimPlatform) Enabled(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.providers[name]
	return ok && sp.enabled
}

// Pushes returns how many samples name has received since it was last added.
func (p *SimPlatform) Pushes(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushes[name]
}

func (p *SimPlatform) MockLocationAllowed(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outage {
		return false, provider.ErrPlatformUnavailable
	}
	return p.mockAllowed, nil
}

func (p *SimPlatform) Granted(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outage {
		return false, provider.ErrPlatformUnavailable
	}
	return p.brokerGranted, nil
}

func (p *SimPlatform) AddTestProvider(_ context.Context, name string, caps core.Capabilities) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outage {
		return provider.ErrPlatformUnavailable
	}
	if _, ok := p.providers[name]; ok {
		return fmt.Errorf("%s: %w", name, provider.ErrProviderConflict)
	}
	p.providers[name] = &simProvider{caps: caps}
	p.pushes[name] = 0
	return nil
}

func (p *SimPlatform) SetTestProviderEnabled(_ context.Context, name string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, err := p.lookup(name)
	if err != nil {
		return err
	}
	sp.enabled = enabled
	return nil
}

func (p *SimPlatform) SetTestProviderLocation(_ context.Context, name string, sample core.LocationSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, err := p.lookup(name)
	if err != nil {
		return err
	}
	s := sample
	sp.last = &s
	p.pushes[name]++
	return nil
}

func (p *SimPlatform) RemoveTestProvider(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.lookup(name); err != nil {
		return err
	}
	delete(p.providers, name)
	delete(p.pushes, name)
	return nil
}

func (p *SimPlatform) LastKnownLocation(_ context.Context, name string) (core.LocationSample, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, err := p.lookup(name)
	if err != nil {
		return core.LocationSample{}, false, err
	}
	if sp.last == nil {
		return core.LocationSample{}, false, nil
	}
	s := *sp.last
	if sp.driftMeters != 0 {
		s.Latitude, s.Longitude = geo.Destination(s.Latitude, s.Longitude, 0, sp.driftMeters)
	}
	return s, true, nil
}

// NetworkState implements the interference handler.
func (p *SimPlatform) NetworkState(_ context.Context) (core.InterferenceState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outage {
		return core.InterferenceState{}, provider.ErrPlatformUnavailable
	}
	return p.network, nil
}

func (p *SimPlatform) lookup(name string) (*simProvider, error) {
	if p.outage {
		return nil, provider.ErrPlatformUnavailable
	}
	sp, ok := p.providers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, provider.ErrUnknownProvider)
	}
	return sp, nil
}

var _ Broker = (*SimPlatform)(nil)
