package trap

import (
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
	"github.com/pkg/errors"
)

var ErrControlTimeout = errors.New("control request timed out")

// Event is anything the update loop reacts to: a mesh notification or a local control
// request. Both go through HandleEvent.
type Event interface {
	isEvent()
}

type MeshEvent struct {
	mesh.Event
}

type ControlOp int

const (
	OpModuleInfo ControlOp = iota
	OpSetConfig
	OpCapture
	OpSendDebug
	OpInitGps
	OpGetGps
	OpSetCurrentTime
	OpMeshGraph
)

func (op ControlOp) String() string {
	switch op {
	case OpModuleInfo:
		return "moduleInfo"
	case OpSetConfig:
		return "setConfig"
	case OpCapture:
		return "capture"
	case OpSendDebug:
		return "sendDebug"
	case OpInitGps:
		return "initGps"
	case OpGetGps:
		return "getGps"
	case OpSetCurrentTime:
		return "setCurrentTime"
	case OpMeshGraph:
		return "meshGraph"
	}
	return "unknown"
}

// ControlRequest is an operator action from the HTTP or websocket channel. Reply must
// be buffered; the loop never blocks on it.
type ControlRequest struct {
	Op         ControlOp
	Config     entities.ConfigDocument
	Resolution camera.Resolution
	Message    string
	NodeID     uint32
	Time       time.Time
	Reply      chan ControlResult
}

type ControlResult struct {
	OK    bool
	Info  *ModuleInfo
	Graph *MeshGraph
}

func (MeshEvent) isEvent()      {}
func (ControlRequest) isEvent() {}

// ModuleInfo is the state document served to operators.
type ModuleInfo struct {
	NodeID       uint32         `json:"module_id"`
	TrapMode     bool           `json:"trap_mode"`
	TrapFire     bool           `json:"trap_fire"`
	Lat          string         `json:"lat"`
	Lon          string         `json:"lon"`
	ActiveStart  int            `json:"active_start"`
	ActiveEnd    int            `json:"active_end"`
	WorkTime     int64          `json:"work_time"`
	Camera       bool           `json:"camera"`
	ParentNodeID uint32         `json:"parent_id"`
	IsParent     bool           `json:"is_parent"`
	BatteryDead  bool           `json:"battery_dead"`
	CurrentTime  int64          `json:"current_time"`
	WakeTime     int64          `json:"wake_time"`
	NodeNum      int            `json:"node_num"`
	Phase        entities.Phase `json:"phase"`
	NodeList     []uint32       `json:"node_list"`
}

type MeshGraph struct {
	NodeID   uint32   `json:"module_id"`
	NodeList []uint32 `json:"node_list"`
}
