package trap

import (
	"context"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/uplink"
	"github.com/janael-pinheiro/trap-module-golang/pkg/schedule"
	"github.com/janael-pinheiro/trap-module-golang/pkg/task"
)

// beginCycle starts an armed cycle. armed is true only for the cycle right after the
// switch to trap mode, the one that runs the election.
func (m *Module) beginCycle(armed bool) {
	m.cycleStart = m.clock.Now()
	m.cycleArmed = armed
	m.syncStarted = false
	m.probeUntil = m.cycleStart
	m.setPhase(entities.PhaseArming)
}

// abortCycle drops back to install mode in the middle of a cycle.
func (m *Module) abortCycle() {
	m.log.Info("install mode restored, cycle aborted")
	m.disableCycleTasks()
	m.store.Update(func(c *entities.NodeConfig) {
		c.IsParent = false
		c.ParentNodeID = entities.UnsetNodeID
	})
	m.store.ResetCycle()
	m.store.Save()
	m.setPhase(entities.PhaseIdle)
}

func (m *Module) disableCycleTasks() {
	for _, t := range []*task.Task{m.tasks.requestState, m.tasks.sendModuleState, m.tasks.syncSleep, m.tasks.parentInfo, m.tasks.gpsData} {
		t.Disable()
	}
}

// elect picks the highest id among the advertised candidates, the known parent and
// this node. The result only depends on the set of ids.
func (m *Module) elect() {
	cfg := m.store.Snapshot()
	parent := m.nodeID
	for id := range cfg.CandidateParentIDs {
		if id > parent {
			parent = id
		}
	}
	if cfg.ParentNodeID > parent {
		parent = cfg.ParentNodeID
	}
	isParent := parent == m.nodeID
	m.store.Update(func(c *entities.NodeConfig) {
		c.IsParent = isParent
		c.ParentNodeID = parent
	})
	m.store.Save()
	if isParent {
		m.log.Infof("elected parent among %d candidates", len(cfg.CandidateParentIDs)+1)
		return
	}
	m.log.Infof("node %d is the parent", parent)
}

// startSyncSleep fixes the next wake time and starts spreading it. It runs once per
// cycle.
func (m *Module) startSyncSleep() {
	if m.syncStarted {
		return
	}
	m.syncStarted = true
	m.store.UpdateNodeNum(m.peerIDs())
	now := m.clock.Now()
	cfg := m.store.Snapshot()
	wake := schedule.ComputeNextWakeTime(now, cfg.ActiveWindow, m.timing.MinWakeGap)
	m.store.Update(func(c *entities.NodeConfig) { c.WakeTime = wake })
	m.store.Save()
	m.log.Infof("next wake at %s, %d peers expected", wake.Format("2006-01-02 15:04"), cfg.ExpectedNodeCount)
	m.tasks.syncSleep.Enable()
	if cfg.IsParent {
		cfg.WakeTime = wake
		m.startDelivery(cfg, now)
	}
	m.setPhase(entities.PhaseWorking)
}

func (m *Module) startSendModuleState() {
	cfg := m.store.Snapshot()
	if cfg.IsParent || cfg.ParentNodeID == entities.UnsetNodeID || cfg.SendStateAcked || m.deadlinePassed() {
		return
	}
	m.stateBackOff.Reset()
	m.tasks.sendModuleState.SetInterval(m.stateBackOff.NextBackOff())
	m.tasks.sendModuleState.Enable()
}

// startDelivery hands the cycle report to the uplink on its own worker.
func (m *Module) startDelivery(cfg entities.NodeConfig, now time.Time) {
	if m.uplink == nil {
		return
	}
	if m.delivery != nil && m.delivery.Running() {
		m.log.Warn("previous report still in flight")
		return
	}
	category := uplink.CategoryPeriod
	if m.cycleArmed {
		category = uplink.CategorySetting
	}
	report := uplink.Report{
		ParentID:    m.nodeID,
		CurrentTime: entities.UnixSeconds(now),
		WakeTime:    entities.UnixSeconds(cfg.WakeTime),
		Lat:         cfg.GPS.Lat,
		Lon:         cfg.GPS.Lon,
		ActiveStart: int(cfg.ActiveWindow.Start),
		ActiveEnd:   int(cfg.ActiveWindow.End),
		Modules:     append(cfg.CollectedStates, m.ownState(cfg)),
	}
	m.delivery = task.NewJob("uplink", func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, uplinkTimeout)
		defer cancel()
		return m.uplink.Deliver(ctx, report, category)
	}, m.tasks.uplinkDone)
	m.delivery.Start(m.ctx)
}

func (m *Module) requestSleep(reason string) {
	cfg := m.store.Snapshot()
	if cfg.SleepRequested {
		return
	}
	m.log.Infof("sleep requested: %s", reason)
	m.store.Update(func(c *entities.NodeConfig) { c.SleepRequested = true })
}

// preemptForBattery cancels whatever the cycle was doing and forces the sleep
// transition right away.
func (m *Module) preemptForBattery(volts float64) {
	m.log.Warnf("battery depleted at %.2fV", volts)
	m.disableCycleTasks()
	m.tasks.batteryCheck.Disable()
	m.store.Update(func(c *entities.NodeConfig) {
		c.BatteryDead = true
		c.SleepRequested = true
	})
	cfg := m.store.Snapshot()
	if !cfg.IsParent && cfg.ParentNodeID != entities.UnsetNodeID && m.phase != entities.PhaseIdle {
		m.unicast("moduleState", cfg.ParentNodeID, mesh.EncodeModuleState(m.ownState(cfg)))
	}
	m.store.Save()
	m.sleepAt = m.clock.Now()
	m.setPhase(entities.PhaseSleepPending)
}

// deepSleep takes the radio down and hands the node to the board. A dead battery
// sleeps with no wake timer.
func (m *Module) deepSleep(ctx context.Context) {
	m.scheduler.DisableAll()
	teardown, cancel := context.WithTimeout(ctx, m.timing.MeshTeardownTimeout)
	m.detach(teardown)
	m.waitJobs(teardown)
	cancel()

	cfg := m.store.Snapshot()
	if cfg.BatteryDead {
		m.halt(ctx)
		return
	}
	if cfg.Mode != entities.ModeTrap {
		m.log.Warn("sleep requested outside trap mode, staying awake")
		m.store.Update(func(c *entities.NodeConfig) { c.SleepRequested = false })
		m.attach()
		m.tasks.batteryCheck.Enable()
		m.setPhase(entities.PhaseIdle)
		return
	}
	now := m.clock.Now()
	if !cfg.WakeTime.After(now) {
		wake := schedule.ComputeNextWakeTime(now, cfg.ActiveWindow, m.timing.MinWakeGap)
		m.log.Infof("no wake time agreed, waking at %s", wake.Format("2006-01-02 15:04"))
		m.store.Update(func(c *entities.NodeConfig) { c.WakeTime = wake })
		cfg = m.store.Snapshot()
	}
	m.store.Save()
	m.sleepFor(ctx, m.sleepDuration(cfg))
}

func (m *Module) sleepDuration(cfg entities.NodeConfig) time.Duration {
	if cfg.WakeTime.IsZero() {
		return 0
	}
	return schedule.ComputeSleepDuration(m.clock.Now(), cfg.WakeTime, m.timing.MaxHardwareSleep, cfg.RealTimeRef, m.clock.Millis())
}

// sleepFor runs one hardware segment. The next boot decides whether another one is
// needed.
func (m *Module) sleepFor(ctx context.Context, d time.Duration) {
	now := m.clock.Now()
	m.sleepUntil = now.Add(d)
	m.store.Update(func(c *entities.NodeConfig) { c.CurrentTimeAtSleep = m.sleepUntil })
	m.store.Save()
	m.setPhase(entities.PhaseSleeping)
	if d <= 0 {
		return
	}
	m.metrics.ObserveSleep(d)
	m.log.Infof("deep sleep for %s", d)
	if err := m.board.DeepSleep(ctx, d); err != nil {
		m.log.Warnf("deep sleep interrupted: %v", err)
	}
}

func (m *Module) halt(ctx context.Context) {
	m.scheduler.DisableAll()
	m.detach(ctx)
	m.store.Save()
	m.setPhase(entities.PhaseSleeping)
	m.halted = true
	m.log.Warn("battery dead, sleeping until power cycle")
	if err := m.board.SleepIndefinitely(ctx); err != nil && ctx.Err() == nil {
		m.log.Errorf("indefinite sleep: %v", err)
	}
}
