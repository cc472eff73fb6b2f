package entities

import "time"

const (
	DefaultMinWakeGap          = 15 * time.Minute
	DefaultMaxHardwareSleep    = 24 * time.Hour
	DefaultSyncSleepGrace      = 3 * time.Second
	DefaultBatteryInterval     = 5 * time.Second
	DefaultRetryInterval       = time.Second
	DefaultRetryIterations     = 3
	DefaultStateIntervalMin    = time.Second
	DefaultStateIntervalMax    = 3 * time.Second
	DefaultRequestInterval     = 3 * time.Second
	DefaultParentInfoDelay     = 2 * time.Second
	DefaultAggregationMargin   = 15 * time.Second
	DefaultMeshTeardownTimeout = 5 * time.Second
	DefaultBatteryLimitVolts   = 3.6
	DefaultStatePath           = "config.json"
	DefaultImagePath           = "image.jpg"
)

// StorageConfig selects the document store backing the module state.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// UplinkConfig describes the collector the parent reports to.
type UplinkConfig struct {
	URL       string `yaml:"url"`
	Exchange  string `yaml:"exchange"`
	UserToken string `yaml:"userToken"`
}

// TimingConfig groups every timing constant of the coordination protocol.
type TimingConfig struct {
	MinWakeGap          time.Duration `yaml:"minWakeGap"`
	MaxHardwareSleep    time.Duration `yaml:"maxHardwareSleep"`
	SyncSleepGrace      time.Duration `yaml:"syncSleepGrace"`
	BatteryInterval     time.Duration `yaml:"batteryInterval"`
	RetryInterval       time.Duration `yaml:"retryInterval"`
	RetryIterations     int64         `yaml:"retryIterations"`
	StateIntervalMin    time.Duration `yaml:"stateIntervalMin"`
	StateIntervalMax    time.Duration `yaml:"stateIntervalMax"`
	RequestInterval     time.Duration `yaml:"requestInterval"`
	ParentInfoDelay     time.Duration `yaml:"parentInfoDelay"`
	AggregationMargin   time.Duration `yaml:"aggregationMargin"`
	MeshTeardownTimeout time.Duration `yaml:"meshTeardownTimeout"`
}

// RuntimeConfig is the process configuration read from YAML at startup.
type RuntimeConfig struct {
	LogLevel          string        `yaml:"logLevel"`
	ControlListen     string        `yaml:"controlListen"`
	Storage           StorageConfig `yaml:"storage"`
	Uplink            UplinkConfig  `yaml:"uplink"`
	Timing            TimingConfig  `yaml:"timing"`
	BatteryLimitVolts float64       `yaml:"batteryLimitVolts"`
	ProbeWhenAlone    bool          `yaml:"probeWhenAlone"`
}

// NewDefaultRuntimeConfig returns the settings used when no file overrides them.
func NewDefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		LogLevel:      "info",
		ControlListen: ":8080",
		Storage:       StorageConfig{Driver: "file", Path: "data"},
		Uplink:        UplinkConfig{Exchange: "trap.modules"},
		Timing: TimingConfig{
			MinWakeGap:          DefaultMinWakeGap,
			MaxHardwareSleep:    DefaultMaxHardwareSleep,
			SyncSleepGrace:      DefaultSyncSleepGrace,
			BatteryInterval:     DefaultBatteryInterval,
			RetryInterval:       DefaultRetryInterval,
			RetryIterations:     DefaultRetryIterations,
			StateIntervalMin:    DefaultStateIntervalMin,
			StateIntervalMax:    DefaultStateIntervalMax,
			RequestInterval:     DefaultRequestInterval,
			ParentInfoDelay:     DefaultParentInfoDelay,
			AggregationMargin:   DefaultAggregationMargin,
			MeshTeardownTimeout: DefaultMeshTeardownTimeout,
		},
		BatteryLimitVolts: DefaultBatteryLimitVolts,
	}
}

// WithDefaults fills every zero timing value with its default.
func (t TimingConfig) WithDefaults() TimingConfig {
	def := NewDefaultRuntimeConfig().Timing
	fill := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&t.MinWakeGap, def.MinWakeGap)
	fill(&t.MaxHardwareSleep, def.MaxHardwareSleep)
	fill(&t.SyncSleepGrace, def.SyncSleepGrace)
	fill(&t.BatteryInterval, def.BatteryInterval)
	fill(&t.RetryInterval, def.RetryInterval)
	fill(&t.StateIntervalMin, def.StateIntervalMin)
	fill(&t.StateIntervalMax, def.StateIntervalMax)
	fill(&t.RequestInterval, def.RequestInterval)
	fill(&t.ParentInfoDelay, def.ParentInfoDelay)
	fill(&t.AggregationMargin, def.AggregationMargin)
	fill(&t.MeshTeardownTimeout, def.MeshTeardownTimeout)
	if t.RetryIterations <= 0 {
		t.RetryIterations = def.RetryIterations
	}
	return t
}
