// pkg/core/strategy.go
package core

import (
	"fmt"
	"strings"
)

// StrategyKind identifies the active spoofing mechanism.
type StrategyKind int

const (
	StrategyInactive StrategyKind = iota
	StrategyAntiDetection
	StrategyStandard
	StrategyPrivilegedFallback
)

var strategyNames = map[StrategyKind]string{
	StrategyInactive:           "inactive",
	StrategyAntiDetection:      "anti_detection",
	StrategyStandard:           "standard",
	StrategyPrivilegedFallback: "privileged_fallback",
}

func (k StrategyKind) String() string {
	if name, ok := strategyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(k))
}

// ParseStrategyKind converts a configured name into a StrategyKind.
func ParseStrategyKind(s string) (StrategyKind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for kind, name := range strategyNames {
		if name == normalized {
			return kind, nil
		}
	}
	return StrategyInactive, fmt.Errorf("unknown strategy: %q", s)
}

// DefaultStrategyOrder is the activation order used when no profile overrides it,
// highest priority first.
func DefaultStrategyOrder() []StrategyKind {
	return []StrategyKind{
		StrategyPrivilegedFallback,
		StrategyAntiDetection,
		StrategyStandard,
	}
}
