// Package interference watches the network transport, whose positioning
// competes with the synthetic providers.
package interference

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mockloc/mockloc/pkg/core"
)

// NetworkSource reads the current network transport state.
type NetworkSource interface {
	NetworkState(ctx context.Context) (core.InterferenceState, error)
}

// Signal names one observed transport signal.
type Signal string

const (
	SignalEnabled   Signal = "network_enabled"
	SignalConnected Signal = "network_connected"
)

// Change is an edge on one signal.
type Change struct {
	Signal Signal
	Rising bool
	State  core.InterferenceState
	// Tolerated is set when the target app needs the network on.
	Tolerated bool
}

// Handler compares successive network readings and reports edges.
type Handler struct {
	src      NetworkSource
	tolerate bool
	onChange func(Change)
	logger   *slog.Logger

	mu    sync.Mutex
	state core.InterferenceState
}

// New creates a Handler. onChange is called synchronously from Poll for every edge.
func New(src NetworkSource, tolerate bool, onChange func(Change), logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		src:      src,
		tolerate: tolerate,
		onChange: onChange,
		logger:   logger,
	}
}

// State returns the last observed state.
func (h *Handler) State() core.InterferenceState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Active reports whether the last observed state competes with the providers.
func (h *Handler) Active() bool {
	return h.State().Active()
}

// Poll reads the network state once. Read errors are logged and keep the previous state.
func (h *Handler) Poll(ctx context.Context) error {
	next, err := h.src.NetworkState(ctx)
	if err != nil {
		h.logger.Warn("reading network state failed", "error", err)
		return nil
	}

	h.mu.Lock()
	prev := h.state
	h.state = next
	h.mu.Unlock()

	var changes []Change
	if prev.NetworkTransportEnabled != next.NetworkTransportEnabled {
		changes = append(changes, Change{Signal: SignalEnabled, Rising: next.NetworkTransportEnabled})
	}
	if prev.NetworkTransportConnected != next.NetworkTransportConnected {
		changes = append(changes, Change{Signal: SignalConnected, Rising: next.NetworkTransportConnected})
	}

	for _, c := range changes {
		c.State = next
		c.Tolerated = h.tolerate
		h.advise(c)
		if h.onChange != nil {
			h.onChange(c)
		}
	}
	return nil
}

func (h *Handler) advise(c Change) {
	switch {
	case !c.Rising:
		h.logger.Info("network interference cleared", "signal", c.Signal)
	case c.Tolerated:
		h.logger.Info("network interference detected, kept on for target app", "signal", c.Signal)
	default:
		h.logger.Warn("network interference detected, disable Wi-Fi for a stable location", "signal", c.Signal)
	}
}
