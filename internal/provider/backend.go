package provider

import (
	"context"

	"github.com/mockloc/mockloc/pkg/core"
)

// Backend is the platform registration API a Driver talks to.
type Backend interface {
	// Name identifies the backend in logs and events.
	Name() string
	// CheckPermission returns nil when mock registration is allowed.
	CheckPermission(ctx context.Context) error
	Register(ctx context.Context, id string, caps core.Capabilities) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Push(ctx context.Context, id string, sample core.LocationSample) error
	Unregister(ctx context.Context, id string) error
	// LastKnown returns the fix the platform currently reports for id.
	LastKnown(ctx context.Context, id string) (core.LocationSample, bool, error)
}

// Journal records registrations so a crashed process can be cleaned up later.
type Journal interface {
	Record(backend, id string) error
	Forget(backend, id string) error
	Pending(backend string) ([]string, error)
}

// Observer is notified after every successful push.
type Observer interface {
	SamplePushed(backend string, sample core.LocationSample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(backend string, sample core.LocationSample)

func (f ObserverFunc) SamplePushed(backend string, sample core.LocationSample) {
	f(backend, sample)
}
