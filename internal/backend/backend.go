// Package backend implements provider.Backend on top of the host location subsystem.
package backend

import (
	"context"
	"fmt"

	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/pkg/core"
)

// LocationManager is the host platform binding for test providers.
type LocationManager interface {
	MockLocationAllowed(ctx context.Context) (bool, error)
	AddTestProvider(ctx context.Context, name string, caps core.Capabilities) error
	SetTestProviderEnabled(ctx context.Context, name string, enabled bool) error
	SetTestProviderLocation(ctx context.Context, name string, sample core.LocationSample) error
	RemoveTestProvider(ctx context.Context, name string) error
	LastKnownLocation(ctx context.Context, name string) (core.LocationSample, bool, error)
}

// Standard registers test providers through the public mock location API.
// It requires this program to be the selected mock location app.
type Standard struct {
	lm LocationManager
}

// NewStandard creates a Standard backend.
func NewStandard(lm LocationManager) *Standard {
	return &Standard{lm: lm}
}

func (s *Standard) Name() string { return "standard" }

func (s *Standard) CheckPermission(ctx context.Context) error {
	ok, err := s.lm.MockLocationAllowed(ctx)
	if err != nil {
		return fmt.Errorf("checking mock location permission: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: select this app as the mock location app in developer options", provider.ErrPermissionDenied)
	}
	return nil
}

func (s *Standard) Register(ctx context.Context, id string, caps core.Capabilities) error {
	return s.lm.AddTestProvider(ctx, id, caps)
}

func (s *Standard) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.lm.SetTestProviderEnabled(ctx, id, enabled)
}

func (s *Standard) Push(ctx context.Context, id string, sample core.LocationSample) error {
	return s.lm.SetTestProviderLocation(ctx, id, sample)
}

func (s *Standard) Unregister(ctx context.Context, id string) error {
	return s.lm.RemoveTestProvider(ctx, id)
}

func (s *Standard) LastKnown(ctx context.Context, id string) (core.LocationSample, bool, error) {
	return s.lm.LastKnownLocation(ctx, id)
}

// Broker is an elevated-privilege service that can register providers without
// the mock location app selection.
type Broker interface {
	LocationManager
	Granted(ctx context.Context) (bool, error)
}

// BrokerBackend registers providers through a Broker.
type BrokerBackend struct {
	*Standard
	broker Broker
}

// NewBroker creates a backend over b.
func NewBroker(b Broker) *BrokerBackend {
	return &BrokerBackend{Standard: NewStandard(b), broker: b}
}

func (b *BrokerBackend) Name() string { return "broker" }

func (b *BrokerBackend) CheckPermission(ctx context.Context) error {
	ok, err := b.broker.Granted(ctx)
	if err != nil {
		return fmt.Errorf("querying broker: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: broker capability not granted", provider.ErrPermissionDenied)
	}
	return nil
}

var (
	_ provider.Backend = (*Standard)(nil)
	_ provider.Backend = (*BrokerBackend)(nil)
)
