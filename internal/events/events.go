// Package events distributes session events to observers.
package events

import (
	"log/slog"
	"sync"

	"github.com/mockloc/mockloc/pkg/core"
)

// Sink receives session events. Publish must not block.
type Sink interface {
	Publish(e core.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(core.Event)

func (f SinkFunc) Publish(e core.Event) { f(e) }

// Fanout delivers every event to all sinks in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a fanout over the non-nil sinks.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Publish(e core.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Publish(e)
	}
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Publish(e core.Event) {
	args := []any{"kind", e.Kind, "session", e.SessionID}
	if e.Strategy != "" {
		args = append(args, "strategy", e.Strategy)
	}
	if e.Provider != "" {
		args = append(args, "provider", e.Provider)
	}
	if e.Detail != "" {
		args = append(args, "detail", e.Detail)
	}
	for k, v := range e.Fields {
		args = append(args, k, v)
	}
	l.Logger.Info("session event", args...)
}
