package trap

import (
	"context"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
)

// phaseHandler is one link of the chain run on every tick. A handler acts when the
// module is in its phase and passes the tick on otherwise.
type phaseHandler interface {
	execute(ctx context.Context)
	setNext(phaseHandler)
}

type basePhase struct {
	next phaseHandler
	m    *Module
}

func (bp *basePhase) execute(ctx context.Context) {
	if bp.next != nil {
		bp.next.execute(ctx)
	}
}

func (bp *basePhase) setNext(next phaseHandler) {
	bp.next = next
}

func newPhaseHandlers(m *Module) phaseHandler {
	sleepPending := &sleepPendingHandler{basePhase{m: m}}
	mode := &modeHandler{basePhase{m: m}}
	arming := &armingHandler{basePhase{m: m}}
	aggregating := &aggregatingHandler{basePhase{m: m}}
	working := &workingHandler{basePhase{m: m}}
	sleepPending.setNext(mode)
	mode.setNext(arming)
	arming.setNext(aggregating)
	aggregating.setNext(working)
	return sleepPending
}

type sleepPendingHandler struct {
	basePhase
}

// A requested sleep waits for the grace period so in-flight sends can leave; a dead
// battery skips the wait.
func (h *sleepPendingHandler) execute(ctx context.Context) {
	m := h.m
	now := m.clock.Now()
	if m.phase == entities.PhaseSleepPending {
		if !now.Before(m.sleepAt) {
			m.deepSleep(ctx)
		}
		return
	}
	cfg := m.store.Snapshot()
	if !cfg.SleepRequested {
		h.basePhase.execute(ctx)
		return
	}
	grace := m.timing.SyncSleepGrace
	if cfg.BatteryDead {
		grace = 0
	}
	m.sleepAt = now.Add(grace)
	m.setPhase(entities.PhaseSleepPending)
	if grace == 0 {
		m.deepSleep(ctx)
	}
}

type modeHandler struct {
	basePhase
}

func (h *modeHandler) execute(ctx context.Context) {
	m := h.m
	cfg := m.store.Snapshot()
	if cfg.Mode == entities.ModeInstall && m.phase != entities.PhaseIdle {
		m.abortCycle()
		return
	}
	if m.phase == entities.PhaseIdle && m.store.TakeTrapModeJustArmed() {
		m.beginCycle(true)
	}
	h.basePhase.execute(ctx)
}

type armingHandler struct {
	basePhase
}

func (h *armingHandler) execute(ctx context.Context) {
	m := h.m
	if m.phase != entities.PhaseArming {
		h.basePhase.execute(ctx)
		return
	}
	if m.cycleArmed {
		m.setPhase(entities.PhaseElecting)
		m.elect()
	}
	cfg := m.store.Snapshot()
	if !cfg.IsParent {
		m.setPhase(entities.PhaseWorking)
		m.startSendModuleState()
		return
	}
	if m.cycleArmed {
		m.store.UpdateNodeNum(m.peerIDs())
		cfg = m.store.Snapshot()
	}
	if cfg.ExpectedNodeCount == 0 {
		if !m.cfg.ProbeWhenAlone {
			m.log.Info("no peers expected, scheduling sleep alone")
			m.startSyncSleep()
			return
		}
		m.probeUntil = m.clock.Now().Add(m.timing.RequestInterval)
	}
	m.log.Infof("aggregating states of %d peers", cfg.ExpectedNodeCount)
	m.setPhase(entities.PhaseAggregating)
	m.tasks.requestState.Enable()
}

type aggregatingHandler struct {
	basePhase
}

// Quorum ends the round early; the deadline ends it with whatever arrived.
func (h *aggregatingHandler) execute(ctx context.Context) {
	m := h.m
	if m.phase != entities.PhaseAggregating {
		h.basePhase.execute(ctx)
		return
	}
	now := m.clock.Now()
	cfg := m.store.Snapshot()
	m.metrics.SetCollectedStates(len(cfg.CollectedStates))
	quorum := m.store.QuorumReached()
	cutoff := m.workDeadline().Add(-m.timing.AggregationMargin)
	switch {
	case quorum && !now.Before(m.probeUntil):
		m.log.Infof("quorum reached with %d states", len(cfg.CollectedStates))
	case !now.Before(cutoff):
		m.log.Warnf("aggregation deadline with %d of %d states", len(cfg.CollectedStates), cfg.ExpectedNodeCount)
	default:
		return
	}
	m.tasks.requestState.Disable()
	m.startSyncSleep()
}

type workingHandler struct {
	basePhase
}

func (h *workingHandler) execute(ctx context.Context) {
	m := h.m
	if m.phase != entities.PhaseWorking {
		h.basePhase.execute(ctx)
		return
	}
	if m.deadlinePassed() {
		m.requestSleep("work time elapsed")
	}
}
