package entities

import "time"

// ConfigDocument is the flat key document used on the wire, by the control surface and
// as the persisted state. Absent keys decode to nil pointers.
type ConfigDocument struct {
	TrapMode           *bool   `json:"trap_mode,omitempty"`
	TrapFire           *bool   `json:"trap_fire,omitempty"`
	Lat                *string `json:"lat,omitempty"`
	Lon                *string `json:"lon,omitempty"`
	ActiveStart        *int    `json:"active_start,omitempty"`
	ActiveEnd          *int    `json:"active_end,omitempty"`
	WorkTime           *int64  `json:"work_time,omitempty"`
	ParentNodeID       *uint32 `json:"parent_id,omitempty"`
	WakeTime           *int64  `json:"wake_time,omitempty"`
	CurrentTime        *int64  `json:"current_time,omitempty"`
	NodeNum            *int    `json:"node_num,omitempty"`
	IsParent           *bool   `json:"is_parent,omitempty"`
	InitGPS            *bool   `json:"init_gps,omitempty"`
	BatteryDead        *bool   `json:"battery_dead,omitempty"`
	CurrentTimeAtSleep *int64  `json:"current_time_at_sleep,omitempty"`
	RealTime           *int64  `json:"real_time,omitempty"`
	RealTimeMillis     *int64  `json:"real_time_millis,omitempty"`
}

// ToPatch converts the document into a patch. GPS is only taken when both coordinates
// are present.
func (d ConfigDocument) ToPatch() ConfigPatch {
	var p ConfigPatch
	if d.TrapMode != nil {
		mode := ModeInstall
		if *d.TrapMode {
			mode = ModeTrap
		}
		p.Mode = &mode
	}
	p.ActiveStart = d.ActiveStart
	p.ActiveEnd = d.ActiveEnd
	if d.WorkTime != nil {
		p.WorkDuration = DurationPtr(time.Duration(*d.WorkTime) * time.Second)
	}
	if d.WakeTime != nil {
		p.WakeTime = TimePtr(FromUnixSeconds(*d.WakeTime))
	}
	if d.CurrentTime != nil {
		p.CurrentTime = TimePtr(FromUnixSeconds(*d.CurrentTime))
	}
	p.EventFired = d.TrapFire
	p.ParentNodeID = d.ParentNodeID
	p.NodeCount = d.NodeNum
	p.IsParent = d.IsParent
	if d.Lat != nil && d.Lon != nil {
		p.GPS = &GPS{Lat: *d.Lat, Lon: *d.Lon}
	}
	p.InitGPS = d.InitGPS != nil && *d.InitGPS
	return p
}

// DocumentFromPatch renders only the fields present in the patch.
func DocumentFromPatch(p ConfigPatch) ConfigDocument {
	var d ConfigDocument
	if p.Mode != nil {
		d.TrapMode = BoolPtr(*p.Mode == ModeTrap)
	}
	d.ActiveStart = p.ActiveStart
	d.ActiveEnd = p.ActiveEnd
	if p.WorkDuration != nil {
		seconds := int64(*p.WorkDuration / time.Second)
		d.WorkTime = &seconds
	}
	d.WakeTime = unixPtr(p.WakeTime)
	d.CurrentTime = unixPtr(p.CurrentTime)
	d.TrapFire = p.EventFired
	d.ParentNodeID = p.ParentNodeID
	d.NodeNum = p.NodeCount
	d.IsParent = p.IsParent
	if p.GPS != nil {
		lat, lon := p.GPS.Lat, p.GPS.Lon
		d.Lat, d.Lon = &lat, &lon
	}
	if p.InitGPS {
		d.InitGPS = BoolPtr(true)
	}
	return d
}

// UnixSeconds renders an unset time as zero.
func UnixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	seconds := UnixSeconds(*t)
	return &seconds
}
