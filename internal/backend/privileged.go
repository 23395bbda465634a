package backend

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mockloc/mockloc/internal/provider"
)

// Elevator obtains superuser rights for the privileged fallback.
type Elevator interface {
	Elevate(ctx context.Context) error
}

// SuperuserElevator reports elevation as available when a superuser binary is on PATH.
// It does not run it.
type SuperuserElevator struct {
	Binary   string
	LookPath func(file string) (string, error)
}

// Elevate returns ErrPermissionDenied when no superuser binary is found.
func (p SuperuserElevator) Elevate(_ context.Context) error {
	bin := p.Binary
	if bin == "" {
		bin = "su"
	}
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(bin); err != nil {
		return fmt.Errorf("%w: %s not found: %v", provider.ErrPermissionDenied, bin, err)
	}
	return nil
}

// PrivilegedFallback is the last-resort registration path on devices where neither
// the mock location app selection nor a broker is available. It fails on most
// devices; callers must always have a lower-priority strategy to fall back to.
type PrivilegedFallback struct {
	*Standard
	elevator Elevator

	mu       sync.Mutex
	elevated bool
}

// NewPrivilegedFallback creates the fallback backend.
func NewPrivilegedFallback(lm LocationManager, elevator Elevator) *PrivilegedFallback {
	if elevator == nil {
		elevator = SuperuserElevator{}
	}
	return &PrivilegedFallback{Standard: NewStandard(lm), elevator: elevator}
}

func (p *PrivilegedFallback) Name() string { return "privileged_fallback" }

// CheckPermission elevates once per backend.
func (p *PrivilegedFallback) CheckPermission(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.elevated {
		return nil
	}
	if err := p.elevator.Elevate(ctx); err != nil {
		return fmt.Errorf("elevating: %w", err)
	}
	p.elevated = true
	return nil
}

var _ provider.Backend = (*PrivilegedFallback)(nil)
