// pkg/core/history.go
package core

import "time"

// Favorite is a saved target.
type Favorite struct {
	ID        uint
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
	UseCount  uint
	LastUsed  time.Time
	CreatedAt time.Time
}

// Target returns the favorite as a fresh target.
func (f Favorite) Target() TargetLocation {
	return NewTarget(f.Latitude, f.Longitude)
}

// SessionSummary is one recorded session.
type SessionSummary struct {
	SessionID string
	AppID     string
	Strategy  string
	Latitude  float64
	Longitude float64
	StartedAt time.Time
	EndedAt   time.Time
	Resets    int
	// Failures maps strategy name to the reason it could not be activated.
	Failures map[string]string
	Events   int
}
