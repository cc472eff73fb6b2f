package trap

import (
	"fmt"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
)

func (m *Module) handleMeshEvent(event mesh.Event) {
	switch event.Kind {
	case mesh.EventReceived:
		messages, err := mesh.Decode(event.Payload)
		if err != nil {
			m.log.Warnf("dropping document from %d: %v", event.From, err)
			return
		}
		for _, message := range messages {
			m.metrics.ObserveReceive(messageKind(message))
			m.handleMessage(event.From, message)
		}
	case mesh.EventPeerJoined, mesh.EventTopologyChanged:
		m.onTopologyChanged(event)
	case mesh.EventTimeAdjusted:
		m.log.Debugf("mesh time adjusted by %s", event.Offset)
		m.clock.Shift(event.Offset)
	}
}

func messageKind(message mesh.Message) string {
	switch message.(type) {
	case mesh.ConfigUpdate:
		return "configUpdate"
	case mesh.ParentInfo:
		return "parentInfo"
	case mesh.RequestState:
		return "requestState"
	case mesh.ModuleState:
		return "moduleState"
	case mesh.Picture:
		return "picture"
	case mesh.RealTime:
		return "realTime"
	case mesh.InitGps:
		return "initGps"
	case mesh.GetGps:
		return "getGps"
	case mesh.Debug:
		return "debug"
	case mesh.SyncSleep:
		return "syncSleep"
	}
	return "unknown"
}

func (m *Module) handleMessage(from uint32, message mesh.Message) {
	switch msg := message.(type) {
	case mesh.ConfigUpdate:
		m.store.ApplyUpdate(msg.Patch)
		m.store.Save()
		m.log.Debugf("config update from %d applied", from)
	case mesh.ParentInfo:
		m.store.AddCandidateParent(msg.ParentID)
	case mesh.RequestState:
		m.onRequestState(from, msg)
	case mesh.ModuleState:
		m.onModuleState(from, msg)
	case mesh.Picture:
		path := fmt.Sprintf("picture-%d.jpg", from)
		if m.documents.WriteDocument(path, msg.Image) {
			m.log.Infof("picture from %d stored at %s", from, path)
		}
	case mesh.RealTime:
		millis := m.clock.Millis()
		m.store.Update(func(c *entities.NodeConfig) {
			c.RealTimeRef = entities.RealTimeRef{Timestamp: msg.Timestamp, LocalMillis: millis}
		})
		m.store.Save()
	case mesh.InitGps:
		m.store.ApplyUpdate(entities.ConfigPatch{InitGPS: true})
		m.store.Save()
		m.log.Info("position cleared")
	case mesh.GetGps:
		if m.store.Snapshot().IsParent {
			m.tasks.gpsData.Enable()
		}
	case mesh.Debug:
		m.log.Infof("debug from %d: %s", from, msg.Text)
	case mesh.SyncSleep:
		m.onSyncSleep(from, msg)
	}
}

func (m *Module) onRequestState(from uint32, msg mesh.RequestState) {
	cfg := m.store.Snapshot()
	if cfg.Mode != entities.ModeTrap {
		return
	}
	parent := msg.ParentID
	if parent == entities.UnsetNodeID {
		parent = from
	}
	if parent == m.nodeID {
		return
	}
	if cfg.IsParent {
		if parent < m.nodeID {
			m.log.Warnf("ignoring state request from lower parent %d", parent)
			return
		}
		m.log.Infof("yielding parent role to %d", parent)
		m.tasks.requestState.Disable()
		if m.phase == entities.PhaseAggregating {
			m.setPhase(entities.PhaseWorking)
		}
	}
	m.store.Update(func(c *entities.NodeConfig) {
		c.IsParent = false
		c.ParentNodeID = parent
		c.SendStateAcked = false
	})
	m.startSendModuleState()
}

func (m *Module) onModuleState(from uint32, msg mesh.ModuleState) {
	cfg := m.store.Snapshot()
	if cfg.Mode != entities.ModeTrap || !cfg.IsParent {
		return
	}
	id := from
	if id == entities.UnsetNodeID {
		id = msg.State.NodeID
	}
	if m.store.RecordPeerState(id, msg.State) {
		m.log.Infof("state of %d recorded", id)
	}
}

func (m *Module) onSyncSleep(from uint32, msg mesh.SyncSleep) {
	cfg := m.store.Snapshot()
	if cfg.Mode != entities.ModeTrap {
		m.log.Debugf("sync sleep from %d ignored in install mode", from)
		return
	}
	patch := entities.ConfigPatch{}
	if !msg.WakeTime.IsZero() {
		patch.WakeTime = &msg.WakeTime
	}
	if !msg.CurrentTime.IsZero() {
		patch.CurrentTime = &msg.CurrentTime
	}
	m.store.ApplyUpdate(patch)
	m.store.UpdateNodeNum(m.peerIDs())
	m.store.Save()
	m.disableCycleTasks()
	m.requestSleep(fmt.Sprintf("sync sleep from %d", from))
}

// onTopologyChanged re-advertises parent candidacy in install mode. In trap mode the
// parent resyncs clocks and a child that has not reported yet retries toward its
// parent once it is visible again.
func (m *Module) onTopologyChanged(event mesh.Event) {
	cfg := m.store.Snapshot()
	if cfg.Mode == entities.ModeInstall {
		m.tasks.parentInfo.EnableDelayed(m.timing.ParentInfoDelay)
		return
	}
	switch m.phase {
	case entities.PhaseArming, entities.PhaseElecting, entities.PhaseAggregating, entities.PhaseWorking:
	default:
		return
	}
	if cfg.IsParent {
		m.tasks.parentInfo.EnableDelayed(m.timing.ParentInfoDelay)
		return
	}
	if !cfg.SendStateAcked && m.peerVisible(cfg.ParentNodeID) && !m.tasks.sendModuleState.IsEnabled() {
		m.log.Debugf("parent %d visible after %s", cfg.ParentNodeID, event.Kind)
		m.startSendModuleState()
	}
}
