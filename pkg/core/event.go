// pkg/core/event.go
package core

import "time"

// EventKind classifies session events.
type EventKind string

const (
	EventStrategyActivated EventKind = "strategy_activated"
	EventStrategyFailed    EventKind = "strategy_failed"
	EventExhausted         EventKind = "strategies_exhausted"
	EventDrift             EventKind = "drift_detected"
	EventReset             EventKind = "provider_reset"
	EventInterference      EventKind = "interference"
	EventTargetChanged     EventKind = "target_changed"
	EventStopped           EventKind = "stopped"
)

// Event is an observable session occurrence.
type Event struct {
	Time      time.Time         `json:"time"`
	SessionID string            `json:"sessionId"`
	Kind      EventKind         `json:"kind"`
	Strategy  string            `json:"strategy,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}
