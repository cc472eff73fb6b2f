package entities

import "time"

// ConfigPatch carries only the fields present in an incoming configuration document.
// A nil field means the key was absent and the current value must be kept.
type ConfigPatch struct {
	Mode         *Mode
	ActiveStart  *int
	ActiveEnd    *int
	WorkDuration *time.Duration
	WakeTime     *time.Time
	CurrentTime  *time.Time
	EventFired   *bool
	ParentNodeID *uint32
	NodeCount    *int
	IsParent     *bool
	GPS          *GPS
	InitGPS      bool
}

// IsEmpty reports whether the patch carries no field at all.
func (p ConfigPatch) IsEmpty() bool {
	return p.Mode == nil && p.ActiveStart == nil && p.ActiveEnd == nil && p.WorkDuration == nil &&
		p.WakeTime == nil && p.CurrentTime == nil && p.EventFired == nil && p.ParentNodeID == nil &&
		p.NodeCount == nil && p.IsParent == nil && p.GPS == nil && !p.InitGPS
}

// ModePtr and the helpers below build patches inline.
func ModePtr(m Mode) *Mode                       { return &m }
func IntPtr(v int) *int                          { return &v }
func BoolPtr(v bool) *bool                       { return &v }
func Uint32Ptr(v uint32) *uint32                 { return &v }
func TimePtr(t time.Time) *time.Time             { return &t }
func DurationPtr(d time.Duration) *time.Duration { return &d }
