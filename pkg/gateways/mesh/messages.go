package mesh

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/pkg/errors"
)

// Message is one decoded intent of a wire document. A document may carry several.
type Message interface {
	isMessage()
}

type ConfigUpdate struct {
	Patch entities.ConfigPatch
}

type ParentInfo struct {
	ParentID uint32
}

type RequestState struct {
	ParentID uint32
}

type ModuleState struct {
	State entities.PeerState
}

type Picture struct {
	Image []byte
}

type RealTime struct {
	Timestamp time.Time
}

type InitGps struct{}

type GetGps struct{}

type Debug struct {
	Text string
}

type SyncSleep struct {
	WakeTime    time.Time
	CurrentTime time.Time
}

func (ConfigUpdate) isMessage() {}
func (ParentInfo) isMessage()   {}
func (RequestState) isMessage() {}
func (ModuleState) isMessage()  {}
func (Picture) isMessage()      {}
func (RealTime) isMessage()     {}
func (InitGps) isMessage()      {}
func (GetGps) isMessage()       {}
func (Debug) isMessage()        {}
func (SyncSleep) isMessage()    {}

type wireDocument struct {
	entities.ConfigDocument
	ConfigUpdate       bool     `json:"config_update,omitempty"`
	RequestModuleState bool     `json:"request_module_state,omitempty"`
	ModuleState        bool     `json:"module_state,omitempty"`
	ModuleID           uint32   `json:"module_id,omitempty"`
	RemainingBattery   *float64 `json:"remaining_battery,omitempty"`
	Camera             *bool    `json:"camera,omitempty"`
	SyncSleep          bool     `json:"sync_sleep,omitempty"`
	ParentInfo         bool     `json:"parent_info,omitempty"`
	GetGps             bool     `json:"get_gps,omitempty"`
	CameraImage        string   `json:"camera_image,omitempty"`
	DebugMessage       string   `json:"debug_message,omitempty"`
}

// Decode parses a wire document into its messages. Sleep synchronization always comes
// last so every other key of the same document is applied before the node goes down.
func Decode(raw []byte) ([]Message, error) {
	var doc wireDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode mesh document")
	}
	var messages []Message
	if doc.ConfigUpdate {
		patch := doc.ToPatch()
		patch.InitGPS = false
		if doc.SyncSleep {
			patch.WakeTime, patch.CurrentTime = nil, nil
		}
		if doc.RequestModuleState {
			patch.ParentNodeID = nil
		}
		if !patch.IsEmpty() {
			messages = append(messages, ConfigUpdate{Patch: patch})
		}
	}
	if doc.ParentInfo && doc.ParentNodeID != nil {
		messages = append(messages, ParentInfo{ParentID: *doc.ParentNodeID})
	}
	if doc.RequestModuleState {
		request := RequestState{}
		if doc.ParentNodeID != nil {
			request.ParentID = *doc.ParentNodeID
		}
		messages = append(messages, request)
	}
	if doc.ModuleState {
		state := entities.PeerState{NodeID: doc.ModuleID}
		if doc.RemainingBattery != nil {
			state.BatteryLevel = *doc.RemainingBattery
		}
		if doc.BatteryDead != nil {
			state.BatteryDead = *doc.BatteryDead
		}
		if doc.TrapFire != nil {
			state.EventFired = *doc.TrapFire
		}
		if doc.Camera != nil {
			state.CameraEnabled = *doc.Camera
		}
		messages = append(messages, ModuleState{State: state})
	}
	if doc.CameraImage != "" {
		image, err := base64.StdEncoding.DecodeString(doc.CameraImage)
		if err != nil {
			return nil, errors.Wrap(err, "decode picture payload")
		}
		messages = append(messages, Picture{Image: image})
	}
	if doc.RealTime != nil && *doc.RealTime > 0 {
		messages = append(messages, RealTime{Timestamp: entities.FromUnixSeconds(*doc.RealTime)})
	}
	if doc.InitGPS != nil && *doc.InitGPS {
		messages = append(messages, InitGps{})
	}
	if doc.GetGps {
		messages = append(messages, GetGps{})
	}
	if doc.DebugMessage != "" {
		messages = append(messages, Debug{Text: doc.DebugMessage})
	}
	if doc.SyncSleep {
		sync := SyncSleep{}
		if doc.WakeTime != nil {
			sync.WakeTime = entities.FromUnixSeconds(*doc.WakeTime)
		}
		if doc.CurrentTime != nil {
			sync.CurrentTime = entities.FromUnixSeconds(*doc.CurrentTime)
		}
		messages = append(messages, sync)
	}
	return messages, nil
}

func encode(doc wireDocument) []byte {
	raw, _ := json.Marshal(doc)
	return raw
}

// EncodeConfigUpdate renders a patch broadcast to every peer.
func EncodeConfigUpdate(patch entities.ConfigPatch) []byte {
	return encode(wireDocument{ConfigDocument: entities.DocumentFromPatch(patch), ConfigUpdate: true})
}

// EncodeRequestState asks every peer to report to parentID. The patch, usually the
// shared settings of the cycle, rides along as a config update.
func EncodeRequestState(parentID uint32, patch entities.ConfigPatch) []byte {
	doc := wireDocument{ConfigDocument: entities.DocumentFromPatch(patch), RequestModuleState: true}
	doc.ConfigUpdate = !patch.IsEmpty()
	doc.ParentNodeID = &parentID
	return encode(doc)
}

func EncodeModuleState(state entities.PeerState) []byte {
	battery := state.BatteryLevel
	doc := wireDocument{
		ModuleState:      true,
		ModuleID:         state.NodeID,
		RemainingBattery: &battery,
		Camera:           entities.BoolPtr(state.CameraEnabled),
	}
	doc.BatteryDead = entities.BoolPtr(state.BatteryDead)
	doc.TrapFire = entities.BoolPtr(state.EventFired)
	return encode(doc)
}

func EncodeParentInfo(parentID uint32) []byte {
	doc := wireDocument{ParentInfo: true}
	doc.ParentNodeID = &parentID
	return encode(doc)
}

func EncodeSyncSleep(wakeTime, currentTime time.Time) []byte {
	doc := wireDocument{SyncSleep: true}
	wake, now := entities.UnixSeconds(wakeTime), entities.UnixSeconds(currentTime)
	doc.WakeTime, doc.CurrentTime = &wake, &now
	return encode(doc)
}

func EncodePicture(image []byte) []byte {
	return encode(wireDocument{CameraImage: base64.StdEncoding.EncodeToString(image)})
}

func EncodeRealTime(t time.Time) []byte {
	doc := wireDocument{}
	seconds := entities.UnixSeconds(t)
	doc.RealTime = &seconds
	return encode(doc)
}

func EncodeInitGps() []byte {
	doc := wireDocument{}
	doc.InitGPS = entities.BoolPtr(true)
	return encode(doc)
}

func EncodeGetGps() []byte {
	return encode(wireDocument{GetGps: true})
}

func EncodeDebug(text string) []byte {
	return encode(wireDocument{DebugMessage: text})
}
