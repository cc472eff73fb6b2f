package trap

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
	"github.com/janael-pinheiro/trap-module-golang/pkg/task"
)

func (m *Module) handleControl(request ControlRequest) ControlResult {
	m.log.Debugf("control %s", request.Op)
	switch request.Op {
	case OpModuleInfo:
		info := m.moduleInfo()
		return ControlResult{OK: true, Info: &info}
	case OpMeshGraph:
		return ControlResult{OK: true, Graph: &MeshGraph{NodeID: m.nodeID, NodeList: m.peerIDs()}}
	case OpSetConfig:
		return ControlResult{OK: m.setConfig(request.Config)}
	case OpCapture:
		return ControlResult{OK: m.startCapture(request.Resolution)}
	case OpSendDebug:
		return ControlResult{OK: m.sendDebug(request.Message, request.NodeID)}
	case OpInitGps:
		return ControlResult{OK: m.initGps()}
	case OpGetGps:
		return ControlResult{OK: m.getGps()}
	case OpSetCurrentTime:
		return ControlResult{OK: m.setCurrentTime(request.Time)}
	}
	m.log.Warnf("unknown control operation %d", request.Op)
	return ControlResult{}
}

func (m *Module) moduleInfo() ModuleInfo {
	cfg := m.store.Snapshot()
	return ModuleInfo{
		NodeID:       m.nodeID,
		TrapMode:     cfg.Mode == entities.ModeTrap,
		TrapFire:     cfg.EventFired,
		Lat:          cfg.GPS.Lat,
		Lon:          cfg.GPS.Lon,
		ActiveStart:  int(cfg.ActiveWindow.Start),
		ActiveEnd:    int(cfg.ActiveWindow.End),
		WorkTime:     int64(cfg.WorkDuration / time.Second),
		Camera:       cfg.CameraEnabled,
		ParentNodeID: cfg.ParentNodeID,
		IsParent:     cfg.IsParent,
		BatteryDead:  cfg.BatteryDead,
		CurrentTime:  entities.UnixSeconds(m.clock.Now()),
		WakeTime:     entities.UnixSeconds(cfg.WakeTime),
		NodeNum:      int(cfg.ExpectedNodeCount),
		Phase:        m.phase,
		NodeList:     m.peerIDs(),
	}
}

// setConfig spreads an operator patch to the mesh first; it is applied locally only
// when the broadcast left.
func (m *Module) setConfig(doc entities.ConfigDocument) bool {
	patch := doc.ToPatch()
	if patch.IsEmpty() {
		return false
	}
	if !m.broadcastToPeers("configUpdate", mesh.EncodeConfigUpdate(patch)) {
		return false
	}
	m.store.ApplyUpdate(patch)
	return m.store.Save()
}

func (m *Module) startCapture(resolution camera.Resolution) bool {
	cfg := m.store.Snapshot()
	if !cfg.CameraEnabled || m.camera == nil {
		m.log.Warn("capture refused, no camera")
		return false
	}
	if m.tasks.sendPicture.IsEnabled() || (m.capture != nil && m.capture.Running()) {
		m.log.Warn("capture refused, previous picture in progress")
		return false
	}
	m.capture = task.NewJob("capture", func(ctx context.Context) bool {
		return m.camera.Capture(resolution)
	}, m.tasks.pictureReady)
	return m.capture.Start(m.ctx)
}

// sendDebug forwards a JSON document as is and wraps anything else as a debug text.
// Without a target it goes to every node, this one included.
func (m *Module) sendDebug(message string, nodeID uint32) bool {
	payload := []byte(message)
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		payload = mesh.EncodeDebug(message)
	}
	if nodeID != entities.UnsetNodeID && nodeID != m.nodeID {
		return m.unicast("debug", nodeID, payload)
	}
	sent := m.broadcastToPeers("debug", payload)
	messages, err := mesh.Decode(payload)
	if err != nil {
		m.log.Warnf("local debug document: %v", err)
		return sent
	}
	for _, message := range messages {
		m.handleMessage(m.nodeID, message)
	}
	return sent
}

func (m *Module) initGps() bool {
	m.store.ApplyUpdate(entities.ConfigPatch{InitGPS: true})
	m.store.Save()
	return m.broadcastToPeers("initGps", mesh.EncodeInitGps())
}

func (m *Module) getGps() bool {
	cfg := m.store.Snapshot()
	if cfg.IsParent {
		m.tasks.gpsData.Enable()
		return true
	}
	if cfg.ParentNodeID == entities.UnsetNodeID {
		m.log.Warn("no parent to ask for a position")
		return false
	}
	return m.unicast("getGps", cfg.ParentNodeID, mesh.EncodeGetGps())
}

func (m *Module) setCurrentTime(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	m.clock.Set(t)
	m.log.Infof("clock set to %s", t.Format(time.RFC3339))
	return m.broadcastToPeers("timeSync", mesh.EncodeConfigUpdate(entities.ConfigPatch{CurrentTime: &t}))
}

// The helpers below queue a request for the update loop and wait for its result.

func (m *Module) ModuleInfo(ctx context.Context) (ModuleInfo, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpModuleInfo})
	if err != nil || result.Info == nil {
		return ModuleInfo{}, err
	}
	return *result.Info, nil
}

func (m *Module) MeshGraph(ctx context.Context) (MeshGraph, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpMeshGraph})
	if err != nil || result.Graph == nil {
		return MeshGraph{}, err
	}
	return *result.Graph, nil
}

func (m *Module) SetConfig(ctx context.Context, doc entities.ConfigDocument) (bool, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpSetConfig, Config: doc})
	return result.OK, err
}

func (m *Module) Capture(ctx context.Context, resolution camera.Resolution) (bool, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpCapture, Resolution: resolution})
	return result.OK, err
}

func (m *Module) SendDebug(ctx context.Context, message string, nodeID uint32) (bool, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpSendDebug, Message: message, NodeID: nodeID})
	return result.OK, err
}

func (m *Module) InitGps(ctx context.Context) (bool, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpInitGps})
	return result.OK, err
}

func (m *Module) GetGps(ctx context.Context) (bool, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpGetGps})
	return result.OK, err
}

func (m *Module) SetCurrentTime(ctx context.Context, t time.Time) (bool, error) {
	result, err := m.Submit(ctx, ControlRequest{Op: OpSetCurrentTime, Time: t})
	return result.OK, err
}
