// pkg/core/location.go
package core

import "time"

// TargetLocation is the coordinate the session asserts. It is replaced as a whole,
// never mutated.
type TargetLocation struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	CreatedAt time.Time
}

// NewTarget builds a TargetLocation stamped with the current time.
func NewTarget(lat, lng float64) TargetLocation {
	return TargetLocation{Latitude: lat, Longitude: lng, CreatedAt: time.Now()}
}

// IsZero reports whether no target has been set.
func (t TargetLocation) IsZero() bool {
	return t.CreatedAt.IsZero() && t.Latitude == 0 && t.Longitude == 0
}

// ProviderKind distinguishes the accuracy class of a synthetic provider.
type ProviderKind string

const (
	ProviderGPS     ProviderKind = "gps"
	ProviderNetwork ProviderKind = "network"
	ProviderPassive ProviderKind = "passive"
	ProviderFused   ProviderKind = "fused"
)

// LocationSample is one fix pushed to a provider.
// Angles are degrees, distances meters, speed meters per second.
type LocationSample struct {
	Provider  string
	Latitude  float64
	Longitude float64
	Altitude  float64
	Accuracy  float64
	Speed     float64
	Bearing   float64

	// ElapsedRealtime is the monotonic timestamp of the fix.
	ElapsedRealtime time.Duration
	// Time is the wall clock timestamp of the fix.
	Time time.Time
}

// Capabilities describes what a synthetic provider claims to support when registered.
type Capabilities struct {
	RequiresNetwork   bool
	RequiresSatellite bool
	RequiresCell      bool
	HasMonetaryCost   bool
	SupportsAltitude  bool
	SupportsSpeed     bool
	SupportsBearing   bool
	PowerUsage        int
	Accuracy          int
}

// CapabilitiesFor returns the capability flags a real provider of the given kind reports.
func CapabilitiesFor(kind ProviderKind) Capabilities {
	switch kind {
	case ProviderGPS:
		return Capabilities{
			RequiresSatellite: true,
			SupportsAltitude:  true,
			SupportsSpeed:     true,
			SupportsBearing:   true,
			PowerUsage:        3,
			Accuracy:          1,
		}
	case ProviderNetwork:
		return Capabilities{
			RequiresNetwork: true,
			RequiresCell:    true,
			PowerUsage:      1,
			Accuracy:        2,
		}
	default:
		return Capabilities{
			SupportsAltitude: true,
			SupportsSpeed:    true,
			SupportsBearing:  true,
			PowerUsage:       1,
			Accuracy:         1,
		}
	}
}

// ProviderHandle is the driver-side record of one registered synthetic provider.
type ProviderHandle struct {
	ID           string
	Kind         ProviderKind
	Capabilities Capabilities
	Enabled      bool
	LastSample   *LocationSample
	RegisteredAt time.Time
}

// InterferenceState is the observed state of the network transport.
type InterferenceState struct {
	NetworkTransportEnabled   bool
	NetworkTransportConnected bool
}

// Active reports whether network positioning could currently compete with the
// synthetic providers.
func (s InterferenceState) Active() bool {
	return s.NetworkTransportEnabled || s.NetworkTransportConnected
}
