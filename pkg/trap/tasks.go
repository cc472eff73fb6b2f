package trap

import (
	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
)

// sharedSettings rides along with every state request so late joiners converge on the
// parent's settings.
func sharedSettings(cfg entities.NodeConfig) entities.ConfigPatch {
	start, end := int(cfg.ActiveWindow.Start), int(cfg.ActiveWindow.End)
	patch := entities.ConfigPatch{
		Mode:         entities.ModePtr(entities.ModeTrap),
		ActiveStart:  &start,
		ActiveEnd:    &end,
		WorkDuration: entities.DurationPtr(cfg.WorkDuration),
	}
	if cfg.GPS.IsSet() {
		gps := cfg.GPS
		patch.GPS = &gps
	}
	return patch
}

func (m *Module) requestStateTick() {
	if len(m.peerIDs()) == 0 {
		m.log.Debug("no peers to request states from")
		return
	}
	cfg := m.store.Snapshot()
	m.broadcast("requestState", mesh.EncodeRequestState(m.nodeID, sharedSettings(cfg)))
}

func (m *Module) sendModuleStateTick() {
	cfg := m.store.Snapshot()
	if cfg.ParentNodeID == entities.UnsetNodeID || cfg.SendStateAcked || m.deadlinePassed() {
		m.tasks.sendModuleState.Disable()
		return
	}
	if m.unicast("moduleState", cfg.ParentNodeID, mesh.EncodeModuleState(m.ownState(cfg))) {
		m.log.Infof("state delivered to parent %d", cfg.ParentNodeID)
		m.store.Update(func(c *entities.NodeConfig) { c.SendStateAcked = true })
		m.tasks.sendModuleState.Disable()
		return
	}
	m.tasks.sendModuleState.SetInterval(m.stateBackOff.NextBackOff())
}

// syncSleepTick spreads the agreed wake time. The node sleeps once it was sent, once it
// ran out of attempts, or right away when alone.
func (m *Module) syncSleepTick() {
	if len(m.peerIDs()) == 0 {
		m.tasks.syncSleep.Disable()
		m.requestSleep("no peers to synchronize")
		return
	}
	cfg := m.store.Snapshot()
	sent := m.broadcast("syncSleep", mesh.EncodeSyncSleep(cfg.WakeTime, m.clock.Now()))
	if sent || m.tasks.syncSleep.IsLastIteration() {
		m.tasks.syncSleep.Disable()
		m.requestSleep("sleep synchronized")
	}
}

// parentInfoTick advertises this node as a parent candidate in install mode. In trap
// mode the parent pushes its clock instead.
func (m *Module) parentInfoTick() {
	cfg := m.store.Snapshot()
	var sent bool
	switch {
	case cfg.Mode == entities.ModeInstall:
		sent = m.broadcast("parentInfo", mesh.EncodeParentInfo(m.nodeID))
	case cfg.IsParent:
		now := m.clock.Now()
		sent = m.broadcast("timeSync", mesh.EncodeConfigUpdate(entities.ConfigPatch{CurrentTime: &now}))
	default:
		sent = true
	}
	if sent {
		m.tasks.parentInfo.Disable()
	}
}

func (m *Module) batteryCheckTick() {
	volts := m.sensors.BatteryVoltage()
	m.metrics.SetBattery(volts)
	if volts >= m.cfg.BatteryLimitVolts {
		return
	}
	m.preemptForBattery(volts)
}

func (m *Module) gpsDataTick() {
	cfg := m.store.Snapshot()
	if !cfg.GPS.IsSet() {
		m.log.Warn("no position to share")
		m.tasks.gpsData.Disable()
		return
	}
	gps, now := cfg.GPS, m.clock.Now()
	if m.broadcastToPeers("gpsData", mesh.EncodeConfigUpdate(entities.ConfigPatch{GPS: &gps, CurrentTime: &now})) {
		m.tasks.gpsData.Disable()
	}
}

func (m *Module) sendPictureTick() {
	image, found := m.documents.ReadDocument(entities.DefaultImagePath)
	if !found || len(image) == 0 {
		m.log.Warn("no picture to send")
		m.tasks.sendPicture.Disable()
		return
	}
	if m.broadcastToPeers("picture", mesh.EncodePicture(image)) {
		m.log.Infof("picture of %d bytes sent", len(image))
		m.tasks.sendPicture.Disable()
	}
}

func (m *Module) pictureReadyTick() {
	if m.capture == nil || !m.capture.Result() {
		m.log.Warn("capture failed")
		return
	}
	m.tasks.sendPicture.Enable()
}

func (m *Module) uplinkDoneTick() {
	if m.delivery == nil {
		return
	}
	if !m.delivery.Result() {
		m.log.Warn("cycle report not delivered")
		return
	}
	m.log.Debug("cycle report delivered")
}
