// Package strategy picks and activates a spoofing strategy, falling back to
// lower-priority ones when a technique is blocked.
package strategy

import (
	"context"

	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/pkg/core"
)

// Strategy is one way of asserting the target location.
type Strategy interface {
	Kind() core.StrategyKind
	Backend() provider.Backend
	// Providers lists the synthetic providers the strategy registers, in order.
	Providers() []core.ProviderKind
	// Jitter reports whether samples are jittered.
	Jitter() bool
	// Available checks the entry condition without registering anything.
	Available(ctx context.Context) error
}

type variant struct {
	kind      core.StrategyKind
	backend   provider.Backend
	providers []core.ProviderKind
	jitter    bool
}

func (v *variant) Kind() core.StrategyKind   { return v.kind }
func (v *variant) Backend() provider.Backend { return v.backend }
func (v *variant) Jitter() bool              { return v.jitter }
func (v *variant) Providers() []core.ProviderKind {
	return append([]core.ProviderKind(nil), v.providers...)
}

func (v *variant) Available(ctx context.Context) error {
	return v.backend.CheckPermission(ctx)
}

// PrivilegedFallback registers gps, network and passive providers through an
// elevated backend (broker or superuser fallback).
func PrivilegedFallback(b provider.Backend) Strategy {
	return &variant{
		kind:      core.StrategyPrivilegedFallback,
		backend:   b,
		providers: []core.ProviderKind{core.ProviderGPS, core.ProviderNetwork, core.ProviderPassive},
		jitter:    true,
	}
}

// AntiDetection registers gps and network providers with jittered samples.
func AntiDetection(b provider.Backend) Strategy {
	return &variant{
		kind:      core.StrategyAntiDetection,
		backend:   b,
		providers: []core.ProviderKind{core.ProviderGPS, core.ProviderNetwork},
		jitter:    true,
	}
}

// Standard registers a single gps provider with exact samples.
func Standard(b provider.Backend) Strategy {
	return &variant{
		kind:      core.StrategyStandard,
		backend:   b,
		providers: []core.ProviderKind{core.ProviderGPS},
	}
}
