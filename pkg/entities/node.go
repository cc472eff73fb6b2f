package entities

import (
	"time"
)

// Mode is the operating mode of a trap module.
type Mode string

const (
	ModeInstall Mode = "install"
	ModeTrap    Mode = "trap"
)

// Phase is the position of a module inside one armed cycle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseArming       Phase = "arming"
	PhaseElecting     Phase = "electing"
	PhaseAggregating  Phase = "aggregating"
	PhaseWorking      Phase = "working"
	PhaseSleepPending Phase = "sleepPending"
	PhaseSleeping     Phase = "sleeping"
)

const (
	DefaultActiveStart = 0
	DefaultActiveEnd   = 24
	MinActiveHour      = 0
	MaxActiveHour      = 24

	DefaultWorkTime = 3 * time.Minute
	MinWorkTime     = 30 * time.Second
	MaxWorkTime     = 30 * time.Minute

	UnsetNodeID uint32 = 0
)

// ActiveWindow is the range of hours of day [Start, End) during which a module may wake.
type ActiveWindow struct {
	Start uint8 `yaml:"start" json:"start"`
	End   uint8 `yaml:"end" json:"end"`
}

// Contains reports whether the given hour of day lies inside the window. A window whose
// start equals its end covers the whole day, and a start after the end wraps midnight.
func (w ActiveWindow) Contains(hour int) bool {
	start := int(w.Start) % 24
	end := int(w.End)
	if start == end%24 {
		return true
	}
	if start < end {
		return start <= hour && hour < end
	}
	return hour >= start || hour < end
}

// RealTimeRef is an authoritative time sample paired with the local monotonic
// milliseconds at which it was captured.
type RealTimeRef struct {
	Timestamp   time.Time
	LocalMillis int64
}

// IsSet reports whether a reference sample was captured.
func (r RealTimeRef) IsSet() bool {
	return !r.Timestamp.IsZero()
}

// Resolve returns the corrected current time given the local milliseconds now. It
// reports false when the counter went backwards, meaning the sample belongs to an
// earlier counter epoch.
func (r RealTimeRef) Resolve(localMillis int64) (time.Time, bool) {
	if !r.IsSet() || localMillis < r.LocalMillis {
		return time.Time{}, false
	}
	return r.Timestamp.Add(time.Duration(localMillis-r.LocalMillis) * time.Millisecond), true
}

type GPS struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// IsSet reports whether both coordinates are present.
func (g GPS) IsSet() bool {
	return g.Lat != "" && g.Lon != ""
}

// PeerState is the status one peer reported during an aggregation round.
type PeerState struct {
	NodeID        uint32  `json:"module_id"`
	BatteryLevel  float64 `json:"remaining_battery"`
	BatteryDead   bool    `json:"battery_dead"`
	EventFired    bool    `json:"trap_fire"`
	CameraEnabled bool    `json:"camera"`
}

// NodeConfig is the configuration and cycle state of one module. Fields below the
// transient marker are never persisted.
type NodeConfig struct {
	NodeID             uint32
	Mode               Mode
	ActiveWindow       ActiveWindow
	WorkDuration       time.Duration
	WakeTime           time.Time
	CurrentTimeAtSleep time.Time
	RealTimeRef        RealTimeRef
	ExpectedNodeCount  uint8
	EventFired         bool
	BatteryDead        bool
	IsParent           bool
	ParentNodeID       uint32
	CameraEnabled      bool
	GPS                GPS

	// transient
	CandidateParentIDs map[uint32]struct{}
	CollectedStates    []PeerState
	SendStateAcked     bool
	TrapModeJustArmed  bool
	SleepRequested     bool
}

// NewDefaultNodeConfig returns the configuration a module boots with when nothing
// valid is persisted.
func NewDefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Mode:               ModeInstall,
		ActiveWindow:       ActiveWindow{Start: DefaultActiveStart, End: DefaultActiveEnd},
		WorkDuration:       DefaultWorkTime,
		CandidateParentIDs: map[uint32]struct{}{},
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c NodeConfig) Clone() NodeConfig {
	clone := c
	clone.CandidateParentIDs = make(map[uint32]struct{}, len(c.CandidateParentIDs))
	for id := range c.CandidateParentIDs {
		clone.CandidateParentIDs[id] = struct{}{}
	}
	clone.CollectedStates = append([]PeerState(nil), c.CollectedStates...)
	return clone
}
