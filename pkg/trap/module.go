// Package trap runs one trap module: the install and trap modes, the armed cycle with
// its parent election, state aggregation and synchronized sleep, and the battery
// preemption that can cut any of it short.
package trap

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/hardware"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/storage"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/uplink"
	"github.com/janael-pinheiro/trap-module-golang/pkg/observability"
	"github.com/janael-pinheiro/trap-module-golang/pkg/store"
	"github.com/janael-pinheiro/trap-module-golang/pkg/task"
	"github.com/sirupsen/logrus"
)

const (
	inboxSize      = 16
	uplinkTimeout  = 30 * time.Second
	pictureRetries = 3
	pictureRetry   = time.Second
)

// Clock is the node clock. Peers and operators may set or shift it.
type Clock interface {
	task.Clock
	Set(t time.Time)
	Shift(d time.Duration)
}

// Dependencies are the collaborators of a module, built once at startup.
type Dependencies struct {
	NodeID    uint32
	Network   mesh.Network
	Store     *store.Store
	Documents storage.DocumentStore
	Camera    camera.Camera
	Uplink    uplink.Uplink
	Sensors   hardware.Sensors
	Board     hardware.Board
	Clock     Clock
	Metrics   *observability.ProtocolCollector
	Log       *logrus.Entry
}

type cycleTasks struct {
	requestState    *task.Task
	sendModuleState *task.Task
	syncSleep       *task.Task
	parentInfo      *task.Task
	batteryCheck    *task.Task
	gpsData         *task.Task
	sendPicture     *task.Task
	pictureReady    *task.Task
	uplinkDone      *task.Task
}

// Module is the orchestrator of one node. All of its state is owned by the goroutine
// calling Boot, Step and HandleEvent; other goroutines talk to it through Submit.
type Module struct {
	cfg     entities.RuntimeConfig
	timing  entities.TimingConfig
	nodeID  uint32
	network mesh.Network
	mesh    mesh.Mesh

	store     *store.Store
	documents storage.DocumentStore
	camera    camera.Camera
	uplink    uplink.Uplink
	sensors   hardware.Sensors
	board     hardware.Board
	clock     Clock
	metrics   *observability.ProtocolCollector
	log       *logrus.Entry

	scheduler    *task.Scheduler
	tasks        cycleTasks
	capture      *task.Job
	delivery     *task.Job
	stateBackOff *backoff.ExponentialBackOff
	handler      phaseHandler
	inbox        chan ControlRequest
	ctx          context.Context

	phase       entities.Phase
	cycleStart  time.Time
	cycleArmed  bool
	syncStarted bool
	probeUntil  time.Time
	sleepAt     time.Time
	sleepUntil  time.Time
	halted      bool
}

func New(cfg entities.RuntimeConfig, deps Dependencies) *Module {
	m := &Module{
		cfg:       cfg,
		timing:    cfg.Timing.WithDefaults(),
		nodeID:    deps.NodeID,
		network:   deps.Network,
		store:     deps.Store,
		documents: deps.Documents,
		camera:    deps.Camera,
		uplink:    deps.Uplink,
		sensors:   deps.Sensors,
		board:     deps.Board,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		log:       deps.Log,
		inbox:     make(chan ControlRequest, inboxSize),
		ctx:       context.Background(),
		phase:     entities.PhaseIdle,
	}
	if m.cfg.BatteryLimitVolts <= 0 {
		m.cfg.BatteryLimitVolts = entities.DefaultBatteryLimitVolts
	}
	m.stateBackOff = newStateBackOff(m.timing.StateIntervalMin, m.timing.StateIntervalMax)
	m.scheduler = task.NewScheduler(m.clock)
	m.scheduler.SetObserver(m.metrics.ObserveTask)
	m.createTasks()
	m.handler = newPhaseHandlers(m)
	m.store.OnCurrentTime(m.clock.Set)
	return m
}

// newStateBackOff draws every interval uniformly from [min, max].
func newStateBackOff(min, max time.Duration) *backoff.ExponentialBackOff {
	if max < min {
		max = min
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = (min + max) / 2
	b.RandomizationFactor = 0
	if min+max > 0 {
		b.RandomizationFactor = float64(max-min) / float64(max+min)
	}
	b.Multiplier = 1
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *Module) createTasks() {
	t := m.timing
	m.tasks.requestState = m.scheduler.NewTask("requestState", t.RequestInterval, task.Forever, m.requestStateTick)
	m.tasks.sendModuleState = m.scheduler.NewTask("sendModuleState", t.StateIntervalMin, task.Forever, m.sendModuleStateTick)
	m.tasks.syncSleep = m.scheduler.NewTask("syncSleep", t.RetryInterval, t.RetryIterations, m.syncSleepTick)
	m.tasks.parentInfo = m.scheduler.NewTask("parentInfo", t.RetryInterval, t.RetryIterations, m.parentInfoTick)
	m.tasks.batteryCheck = m.scheduler.NewTask("batteryCheck", t.BatteryInterval, task.Forever, m.batteryCheckTick)
	m.tasks.gpsData = m.scheduler.NewTask("gpsData", t.RetryInterval, t.RetryIterations, m.gpsDataTick)
	m.tasks.sendPicture = m.scheduler.NewTask("sendPicture", pictureRetry, pictureRetries, m.sendPictureTick)
	m.tasks.pictureReady = m.scheduler.NewTask("pictureReady", pictureRetry, 1, m.pictureReadyTick)
	m.tasks.uplinkDone = m.scheduler.NewTask("uplinkDone", pictureRetry, 1, m.uplinkDoneTick)
}

func (m *Module) NodeID() uint32 {
	return m.nodeID
}

func (m *Module) Phase() entities.Phase {
	return m.phase
}

// Halted reports whether the module went into indefinite sleep.
func (m *Module) Halted() bool {
	return m.halted
}

func (m *Module) Snapshot() entities.NodeConfig {
	return m.store.Snapshot()
}

func (m *Module) setPhase(phase entities.Phase) {
	if m.phase == phase {
		return
	}
	m.log.Infof("phase %s -> %s", m.phase, phase)
	m.phase = phase
}

// Boot is what the node does at power up and after every hardware wake: reload the
// persisted state, then either go back to sleep or attach to the mesh and start.
func (m *Module) Boot(ctx context.Context) {
	m.ctx = ctx
	m.scheduler.DisableAll()
	m.phase = entities.PhaseIdle
	m.syncStarted = false
	m.probeUntil = time.Time{}
	if err := m.store.Load(); err != nil {
		m.log.Warnf("booting with defaults: %v", err)
	}
	cameraEnabled := m.camera != nil && m.camera.Initialize()
	fired := m.sensors.TriggerFired()
	// the local millisecond counter restarts with every boot, so an older time
	// reference can no longer correct drift
	m.store.Update(func(c *entities.NodeConfig) {
		c.NodeID = m.nodeID
		c.CameraEnabled = cameraEnabled
		c.RealTimeRef = entities.RealTimeRef{}
		if fired {
			c.EventFired = true
		}
	})
	m.store.ResetCycle()

	cfg := m.store.Snapshot()
	if cfg.Mode == entities.ModeTrap && m.clock.Now().Before(cfg.CurrentTimeAtSleep) {
		m.clock.Set(cfg.CurrentTimeAtSleep)
	}

	volts := m.sensors.BatteryVoltage()
	m.metrics.SetBattery(volts)
	switch {
	case volts < m.cfg.BatteryLimitVolts && !cfg.BatteryDead:
		m.log.Warnf("battery at %.2fV on boot", volts)
		m.store.Update(func(c *entities.NodeConfig) { c.BatteryDead = true })
	case volts >= m.cfg.BatteryLimitVolts && cfg.BatteryDead:
		m.log.Infof("battery recovered at %.2fV", volts)
		m.store.Update(func(c *entities.NodeConfig) { c.BatteryDead = false })
		m.store.Save()
	}
	cfg = m.store.Snapshot()
	if cfg.BatteryDead {
		m.halt(ctx)
		return
	}
	if cfg.Mode == entities.ModeTrap {
		if d := m.sleepDuration(cfg); d > 0 {
			m.sleepFor(ctx, d)
			return
		}
	}

	m.attach()
	m.tasks.batteryCheck.Enable()
	if cfg.Mode == entities.ModeTrap {
		m.beginCycle(false)
		return
	}
	m.log.Infof("node %d ready in install mode", m.nodeID)
}

// Step runs one update tick: pending events first, then the phase handlers, then
// every due task.
func (m *Module) Step(ctx context.Context) {
	m.ctx = ctx
	m.drain()
	if m.halted {
		return
	}
	if m.phase == entities.PhaseSleeping {
		if !m.clock.Now().Before(m.sleepUntil) {
			m.Boot(ctx)
		}
		return
	}
	m.handler.execute(ctx)
	m.scheduler.Execute()
}

// Run boots the module and ticks it until ctx ends.
func (m *Module) Run(ctx context.Context, tick time.Duration) error {
	m.Boot(ctx)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		m.Step(ctx)
		var events <-chan mesh.Event
		if m.mesh != nil {
			events = m.mesh.Events()
		}
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-ticker.C:
		case event, ok := <-events:
			if !ok {
				m.mesh = nil
				continue
			}
			m.HandleEvent(MeshEvent{Event: event})
		case request := <-m.inbox:
			m.HandleEvent(request)
		}
	}
}

func (m *Module) shutdown() {
	m.scheduler.DisableAll()
	ctx, cancel := context.WithTimeout(context.Background(), m.timing.MeshTeardownTimeout)
	defer cancel()
	m.detach(ctx)
	m.waitJobs(ctx)
	m.store.Save()
}

func (m *Module) drain() {
	for {
		var events <-chan mesh.Event
		if m.mesh != nil {
			events = m.mesh.Events()
		}
		select {
		case event, ok := <-events:
			if !ok {
				m.log.Warn("mesh connection closed")
				m.mesh = nil
				continue
			}
			m.HandleEvent(MeshEvent{Event: event})
		case request := <-m.inbox:
			m.HandleEvent(request)
		default:
			return
		}
	}
}

// HandleEvent is the single entry point for everything that reaches the module from
// outside the update loop.
func (m *Module) HandleEvent(event Event) {
	switch e := event.(type) {
	case MeshEvent:
		m.handleMeshEvent(e.Event)
	case ControlRequest:
		result := m.handleControl(e)
		if e.Reply != nil {
			select {
			case e.Reply <- result:
			default:
				m.log.Warnf("%s reply dropped", e.Op)
			}
		}
	}
}

// Submit queues a control request for the update loop and waits for its result.
func (m *Module) Submit(ctx context.Context, request ControlRequest) (ControlResult, error) {
	request.Reply = make(chan ControlResult, 1)
	select {
	case m.inbox <- request:
	case <-ctx.Done():
		return ControlResult{}, ErrControlTimeout
	}
	select {
	case result := <-request.Reply:
		return result, nil
	case <-ctx.Done():
		return ControlResult{}, ErrControlTimeout
	}
}

func (m *Module) attach() {
	if m.mesh != nil {
		return
	}
	m.mesh = m.network.Attach(m.nodeID)
	m.log.Debugf("node %d attached to mesh", m.nodeID)
}

func (m *Module) detach(ctx context.Context) {
	if m.mesh == nil {
		return
	}
	if err := m.mesh.Stop(ctx); err != nil {
		m.log.Warnf("mesh teardown: %v", err)
	}
	m.mesh = nil
}

func (m *Module) waitJobs(ctx context.Context) {
	for _, job := range []*task.Job{m.capture, m.delivery} {
		if job != nil && !job.Wait(ctx) {
			m.log.Warnf("%s still running at teardown", job.Name())
		}
	}
}

// peerIDs lists the visible peers, excluding this node.
func (m *Module) peerIDs() []uint32 {
	if m.mesh == nil {
		return nil
	}
	var peers []uint32
	for _, id := range m.mesh.PeerIDs() {
		if id != m.nodeID {
			peers = append(peers, id)
		}
	}
	return peers
}

func (m *Module) peerVisible(id uint32) bool {
	for _, peer := range m.peerIDs() {
		if peer == id {
			return true
		}
	}
	return false
}

func (m *Module) broadcast(kind string, payload []byte) bool {
	if m.mesh == nil {
		return false
	}
	ok := m.mesh.Broadcast(payload)
	m.metrics.ObserveSend(kind, ok)
	if !ok {
		m.log.Warnf("%s broadcast failed", kind)
	}
	return ok
}

// broadcastToPeers succeeds trivially when nobody is listening.
func (m *Module) broadcastToPeers(kind string, payload []byte) bool {
	if len(m.peerIDs()) == 0 {
		return true
	}
	return m.broadcast(kind, payload)
}

func (m *Module) unicast(kind string, to uint32, payload []byte) bool {
	if m.mesh == nil {
		return false
	}
	ok := m.mesh.Unicast(to, payload)
	m.metrics.ObserveSend(kind, ok)
	if !ok {
		m.log.Warnf("%s to %d failed", kind, to)
	}
	return ok
}

func (m *Module) ownState(cfg entities.NodeConfig) entities.PeerState {
	return entities.PeerState{
		NodeID:        m.nodeID,
		BatteryLevel:  m.sensors.BatteryVoltage(),
		BatteryDead:   cfg.BatteryDead,
		EventFired:    cfg.EventFired || m.sensors.TriggerFired(),
		CameraEnabled: cfg.CameraEnabled,
	}
}

func (m *Module) workDeadline() time.Time {
	return m.cycleStart.Add(m.store.Snapshot().WorkDuration)
}

func (m *Module) deadlinePassed() bool {
	return !m.clock.Now().Before(m.workDeadline())
}
