// pkg/core/profile.go
package core

import "time"

// BurstSchedule is a fixed window of high-frequency refreshes after activation.
type BurstSchedule struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Window   time.Duration `json:"window" mapstructure:"window"`
}

// Enabled reports whether the schedule describes a usable burst.
func (b BurstSchedule) Enabled() bool {
	return b.Interval > 0 && b.Window > 0
}

// AppProfile is reference data describing how a target application behaves.
type AppProfile struct {
	AppID                        string        `json:"appId" mapstructure:"appId"`
	RecommendedStrategy          StrategyKind  `json:"-" mapstructure:"-"`
	RequiresHighFrequencyRefresh bool          `json:"requiresHighFrequencyRefresh" mapstructure:"requiresHighFrequencyRefresh"`
	RequiresNetworkEnabled       bool          `json:"requiresNetworkEnabled" mapstructure:"requiresNetworkEnabled"`
	HasStrongCounterDetection    bool          `json:"hasStrongCounterDetection" mapstructure:"hasStrongCounterDetection"`
	RefreshInterval              time.Duration `json:"refreshInterval" mapstructure:"refreshInterval"`
	Burst                        BurstSchedule `json:"burst" mapstructure:"burst"`
}

// DeviceInfo identifies the device the session runs on.
type DeviceInfo struct {
	Vendor string
	Model  string
	SDK    int
}
