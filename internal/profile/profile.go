// Package profile holds the read-only app and device reference data used to plan
// a session.
package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/spf13/viper"
)

// DefaultAppID is the profile returned for unknown apps.
const DefaultAppID = "default"

// DefaultBurst is used for apps that need high frequency refresh but configure no burst.
var DefaultBurst = core.BurstSchedule{Interval: 200 * time.Millisecond, Window: 10 * time.Second}

// AppConfig is the configuration form of an app profile.
type AppConfig struct {
	AppID                        string             `mapstructure:"appId"`
	Strategy                     string             `mapstructure:"strategy"`
	RequiresHighFrequencyRefresh bool               `mapstructure:"requiresHighFrequencyRefresh"`
	RequiresNetworkEnabled       bool               `mapstructure:"requiresNetworkEnabled"`
	HasStrongCounterDetection    bool               `mapstructure:"hasStrongCounterDetection"`
	RefreshInterval              time.Duration      `mapstructure:"refreshInterval"`
	Burst                        core.BurstSchedule `mapstructure:"burst"`
}

// DeviceConfig is the configuration form of a device profile.
type DeviceConfig struct {
	Name string `mapstructure:"name"`
	// When is an expr rule over vendor (lower case), model and sdk.
	When            string        `mapstructure:"when"`
	StrategyOrder   []string      `mapstructure:"strategyOrder"`
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
}

// DeviceProfile is a compiled device rule.
type DeviceProfile struct {
	Name            string
	When            string
	StrategyOrder   []core.StrategyKind
	RefreshInterval time.Duration

	program *vm.Program
}

func (d *DeviceProfile) matches(info core.DeviceInfo) (bool, error) {
	out, err := expr.Run(d.program, deviceEnv(info))
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}

func deviceEnv(info core.DeviceInfo) map[string]any {
	return map[string]any{
		"vendor": strings.ToLower(strings.TrimSpace(info.Vendor)),
		"model":  strings.TrimSpace(info.Model),
		"sdk":    info.SDK,
	}
}

// Plan is the resolved tuning for one session.
type Plan struct {
	App             core.AppProfile
	Device          string
	StrategyOrder   []core.StrategyKind
	MonitorInterval time.Duration
	Burst           core.BurstSchedule
	TolerateNetwork bool
	Jitter          bool
}

// Registry is built once and never mutated afterwards; it is safe for
// concurrent readers.
type Registry struct {
	apps         map[string]core.AppProfile
	devices      []*DeviceProfile
	baseInterval time.Duration
}

// BuiltinApps returns the app profiles shipped with the program.
func BuiltinApps() []AppConfig {
	return []AppConfig{
		{AppID: DefaultAppID},
		{
			AppID:                        "com.example.navigation",
			RequiresHighFrequencyRefresh: true,
			RequiresNetworkEnabled:       true,
			RefreshInterval:              time.Second,
		},
		{
			AppID:                     "com.example.checkin",
			Strategy:                  core.StrategyAntiDetection.String(),
			HasStrongCounterDetection: true,
			RequiresNetworkEnabled:    true,
		},
	}
}

// BuiltinDevices returns the device rules shipped with the program.
func BuiltinDevices() []DeviceConfig {
	return []DeviceConfig{
		{
			// recent platform releases reject the privileged path outright
			Name:          "modern-sdk",
			When:          "sdk >= 34",
			StrategyOrder: []string{"anti_detection", "standard"},
		},
	}
}

// New compiles the given profiles. Config apps replace built-ins with the same id;
// config devices are evaluated before built-ins.
func New(baseInterval time.Duration, apps []AppConfig, devices []DeviceConfig) (*Registry, error) {
	if baseInterval <= 0 {
		baseInterval = 2 * time.Second
	}

	r := &Registry{
		apps:         make(map[string]core.AppProfile),
		baseInterval: baseInterval,
	}

	for _, a := range append(BuiltinApps(), apps...) {
		p, err := a.profile()
		if err != nil {
			return nil, err
		}
		r.apps[p.AppID] = p
	}

	for _, d := range append(devices, BuiltinDevices()...) {
		p, err := d.compile()
		if err != nil {
			return nil, err
		}
		r.devices = append(r.devices, p)
	}

	return r, nil
}

// FromViper builds a registry from the profiles.* configuration keys.
func FromViper(baseInterval time.Duration) (*Registry, error) {
	var apps []AppConfig
	if err := viper.UnmarshalKey("profiles.apps", &apps); err != nil {
		return nil, fmt.Errorf("reading profiles.apps: %w", err)
	}
	var devices []DeviceConfig
	if err := viper.UnmarshalKey("profiles.devices", &devices); err != nil {
		return nil, fmt.Errorf("reading profiles.devices: %w", err)
	}
	return New(baseInterval, apps, devices)
}

func (a AppConfig) profile() (core.AppProfile, error) {
	if strings.TrimSpace(a.AppID) == "" {
		return core.AppProfile{}, fmt.Errorf("app profile without appId")
	}
	p := core.AppProfile{
		AppID:                        a.AppID,
		RequiresHighFrequencyRefresh: a.RequiresHighFrequencyRefresh,
		RequiresNetworkEnabled:       a.RequiresNetworkEnabled,
		HasStrongCounterDetection:    a.HasStrongCounterDetection,
		RefreshInterval:              a.RefreshInterval,
		Burst:                        a.Burst,
	}
	if a.Strategy != "" {
		kind, err := core.ParseStrategyKind(a.Strategy)
		if err != nil {
			return core.AppProfile{}, fmt.Errorf("app %s: %w", a.AppID, err)
		}
		p.RecommendedStrategy = kind
	}
	return p, nil
}

func (d DeviceConfig) compile() (*DeviceProfile, error) {
	if strings.TrimSpace(d.When) == "" {
		return nil, fmt.Errorf("device profile %s: rule must not be empty", d.Name)
	}
	program, err := expr.Compile(d.When, expr.Env(deviceEnv(core.DeviceInfo{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("device profile %s: compile: %w", d.Name, err)
	}

	p := &DeviceProfile{
		Name:            d.Name,
		When:            d.When,
		RefreshInterval: d.RefreshInterval,
		program:         program,
	}
	for _, s := range d.StrategyOrder {
		kind, err := core.ParseStrategyKind(s)
		if err != nil {
			return nil, fmt.Errorf("device profile %s: %w", d.Name, err)
		}
		p.StrategyOrder = append(p.StrategyOrder, kind)
	}
	return p, nil
}

// App returns the profile for appID, or the default profile for unknown ids.
func (r *Registry) App(appID string) core.AppProfile {
	if p, ok := r.apps[appID]; ok {
		return p
	}
	p := r.apps[DefaultAppID]
	p.AppID = appID
	return p
}

// Device returns the first device profile whose rule matches info.
func (r *Registry) Device(info core.DeviceInfo) (*DeviceProfile, bool) {
	for _, d := range r.devices {
		ok, err := d.matches(info)
		if err == nil && ok {
			return d, true
		}
	}
	return nil, false
}

// Resolve combines the app and device profiles into a session plan.
func (r *Registry) Resolve(appID string, info core.DeviceInfo) Plan {
	app := r.App(appID)
	plan := Plan{
		App:             app,
		StrategyOrder:   core.DefaultStrategyOrder(),
		MonitorInterval: r.baseInterval,
		Burst:           app.Burst,
		TolerateNetwork: app.RequiresNetworkEnabled,
		Jitter:          app.HasStrongCounterDetection,
	}

	if device, ok := r.Device(info); ok {
		plan.Device = device.Name
		if len(device.StrategyOrder) > 0 {
			plan.StrategyOrder = append([]core.StrategyKind(nil), device.StrategyOrder...)
		}
		if device.RefreshInterval > 0 {
			plan.MonitorInterval = device.RefreshInterval
		}
	}

	if app.RefreshInterval > 0 {
		plan.MonitorInterval = app.RefreshInterval
	}
	if app.RequiresHighFrequencyRefresh && !plan.Burst.Enabled() {
		plan.Burst = DefaultBurst
	}
	if app.RecommendedStrategy != core.StrategyInactive {
		plan.StrategyOrder = promote(plan.StrategyOrder, app.RecommendedStrategy)
	}
	if app.HasStrongCounterDetection {
		// standard pushes unjittered fixes
		plan.StrategyOrder = demote(plan.StrategyOrder, core.StrategyStandard)
	}

	return plan
}

func promote(order []core.StrategyKind, kind core.StrategyKind) []core.StrategyKind {
	out := []core.StrategyKind{kind}
	for _, k := range order {
		if k != kind {
			out = append(out, k)
		}
	}
	return out
}

func demote(order []core.StrategyKind, kind core.StrategyKind) []core.StrategyKind {
	out := make([]core.StrategyKind, 0, len(order))
	found := false
	for _, k := range order {
		if k == kind {
			found = true
			continue
		}
		out = append(out, k)
	}
	if found {
		out = append(out, kind)
	}
	return out
}
