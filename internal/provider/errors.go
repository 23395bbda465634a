package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the platform refused mock provider registration.
	// Remediation: select this program as the mock location app in the device's
	// developer options, or grant the broker capability.
	ErrPermissionDenied = errors.New("mock location permission denied")

	// ErrAlreadyRegistered means the id already has an active registration.
	ErrAlreadyRegistered = errors.New("provider already registered")

	// ErrProviderConflict is returned by backends when the platform already lists
	// the id (registered by a previous owner). Strategies treat it as a no-op.
	ErrProviderConflict = errors.New("provider conflict")

	// ErrUnknownProvider means the id has no active registration.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidSample is returned for samples whose timestamps do not advance.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrPlatformUnavailable means the location subsystem stopped responding.
	ErrPlatformUnavailable = errors.New("location platform unavailable")
)

// ErrStaleSample is the ErrInvalidSample case for non-increasing timestamps.
var ErrStaleSample = fmt.Errorf("%w: stale sample", ErrInvalidSample)
