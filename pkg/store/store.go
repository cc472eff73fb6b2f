// Package store keeps the configuration and cycle state of one module and persists it
// as a single document.
package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNoDocument = errors.New("no persisted document")

const maxNodeCount = 255

// Store owns the NodeConfig of a module. Every mutation goes through its methods so the
// update loop and the control surface never observe a half-written config.
type Store struct {
	mu        sync.RWMutex
	documents storage.DocumentStore
	path      string
	log       *logrus.Entry
	config    entities.NodeConfig
	setClock  func(time.Time)
}

func New(documents storage.DocumentStore, path string, log *logrus.Entry) *Store {
	if path == "" {
		path = entities.DefaultStatePath
	}
	return &Store{
		documents: documents,
		path:      path,
		log:       log,
		config:    entities.NewDefaultNodeConfig(),
	}
}

// OnCurrentTime registers the hook that applies a current time carried by an update.
func (s *Store) OnCurrentTime(setClock func(time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setClock = setClock
}

// Load replaces the in-memory config with the persisted one. A missing, empty or
// malformed document leaves defaults in place and the returned error says why; the
// store is valid either way.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodeID, camera := s.config.NodeID, s.config.CameraEnabled
	s.config = entities.NewDefaultNodeConfig()
	s.config.NodeID, s.config.CameraEnabled = nodeID, camera

	raw, found := s.documents.ReadDocument(s.path)
	if !found {
		return errors.Wrap(ErrNoDocument, "first boot")
	}
	if len(raw) == 0 {
		return errors.Wrap(ErrNoDocument, "empty document")
	}
	var doc entities.ConfigDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "parse persisted document")
	}
	if doc.TrapMode == nil || !*doc.TrapMode {
		doc.IsParent, doc.ParentNodeID, doc.TrapFire, doc.WakeTime = nil, nil, nil, nil
	}
	s.applyDocument(doc)
	s.log.Debugf("loaded %s in %s mode", s.path, s.config.Mode)
	return nil
}

func (s *Store) applyDocument(doc entities.ConfigDocument) {
	patch := doc.ToPatch()
	if patch.Mode != nil {
		s.config.Mode = *patch.Mode
	}
	patch.Mode, patch.CurrentTime = nil, nil
	s.merge(patch)
	if doc.BatteryDead != nil {
		s.config.BatteryDead = *doc.BatteryDead
	}
	if doc.CurrentTimeAtSleep != nil {
		s.config.CurrentTimeAtSleep = entities.FromUnixSeconds(*doc.CurrentTimeAtSleep)
	}
	if doc.RealTime != nil && *doc.RealTime > 0 {
		ref := entities.RealTimeRef{Timestamp: entities.FromUnixSeconds(*doc.RealTime)}
		if doc.RealTimeMillis != nil {
			ref.LocalMillis = *doc.RealTimeMillis
		}
		s.config.RealTimeRef = ref
	}
}

// Save writes the full persisted document.
func (s *Store) Save() bool {
	s.mu.RLock()
	doc := persistedDocument(s.config)
	s.mu.RUnlock()
	raw, err := json.Marshal(doc)
	if err != nil {
		s.log.Errorf("encode state: %v", err)
		return false
	}
	if !s.documents.WriteDocument(s.path, raw) {
		s.log.Errorf("state not persisted to %s", s.path)
		return false
	}
	return true
}

func persistedDocument(c entities.NodeConfig) entities.ConfigDocument {
	start, end := int(c.ActiveWindow.Start), int(c.ActiveWindow.End)
	nodeNum := int(c.ExpectedNodeCount)
	work := int64(c.WorkDuration / time.Second)
	wake := entities.UnixSeconds(c.WakeTime)
	atSleep := entities.UnixSeconds(c.CurrentTimeAtSleep)
	doc := entities.ConfigDocument{
		TrapMode:           entities.BoolPtr(c.Mode == entities.ModeTrap),
		TrapFire:           entities.BoolPtr(c.EventFired),
		Lat:                &c.GPS.Lat,
		Lon:                &c.GPS.Lon,
		ActiveStart:        &start,
		ActiveEnd:          &end,
		WorkTime:           &work,
		ParentNodeID:       entities.Uint32Ptr(c.ParentNodeID),
		WakeTime:           &wake,
		NodeNum:            &nodeNum,
		IsParent:           entities.BoolPtr(c.IsParent),
		BatteryDead:        entities.BoolPtr(c.BatteryDead),
		CurrentTimeAtSleep: &atSleep,
	}
	if c.RealTimeRef.IsSet() {
		ts := entities.UnixSeconds(c.RealTimeRef.Timestamp)
		millis := c.RealTimeRef.LocalMillis
		doc.RealTime, doc.RealTimeMillis = &ts, &millis
	}
	return doc
}

// ApplyUpdate merges the fields present in the patch, clamping out-of-range values. It
// returns the current time the patch carried, if any, after handing it to the clock hook.
func (s *Store) ApplyUpdate(patch entities.ConfigPatch) (time.Time, bool) {
	s.mu.Lock()
	s.merge(patch)
	setClock := s.setClock
	s.mu.Unlock()
	if patch.CurrentTime == nil || patch.CurrentTime.IsZero() {
		return time.Time{}, false
	}
	if setClock != nil {
		setClock(*patch.CurrentTime)
	}
	return *patch.CurrentTime, true
}

func (s *Store) merge(p entities.ConfigPatch) {
	c := &s.config
	if p.ActiveStart != nil {
		c.ActiveWindow.Start = uint8(clamp(*p.ActiveStart, entities.MinActiveHour, entities.MaxActiveHour))
	}
	if p.ActiveEnd != nil {
		c.ActiveWindow.End = uint8(clamp(*p.ActiveEnd, entities.MinActiveHour, entities.MaxActiveHour))
	}
	if p.WorkDuration != nil {
		c.WorkDuration = clampDuration(*p.WorkDuration, entities.MinWorkTime, entities.MaxWorkTime)
	}
	if p.IsParent != nil {
		c.IsParent = *p.IsParent
	}
	if p.ParentNodeID != nil {
		c.ParentNodeID = *p.ParentNodeID
	}
	if p.NodeCount != nil {
		c.ExpectedNodeCount = uint8(clamp(*p.NodeCount, 0, maxNodeCount))
	}
	if p.GPS != nil {
		c.GPS = *p.GPS
	}
	if p.InitGPS {
		c.GPS = entities.GPS{}
	}
	if p.WakeTime != nil {
		c.WakeTime = *p.WakeTime
	}
	if p.EventFired != nil {
		c.EventFired = *p.EventFired
	}
	if p.Mode != nil {
		previous := c.Mode
		c.Mode = *p.Mode
		if previous == entities.ModeInstall && c.Mode == entities.ModeTrap {
			s.log.Info("trap mode armed")
			c.TrapModeJustArmed = true
		}
	}
}

// Snapshot returns a deep copy of the current config.
func (s *Store) Snapshot() entities.NodeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Update runs fn with exclusive access to the config.
func (s *Store) Update(fn func(c *entities.NodeConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.config)
}

// RecordPeerState keeps the first report of every peer; it reports whether the state
// was inserted.
func (s *Store) RecordPeerState(fromID uint32, state entities.PeerState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.NodeID = fromID
	for _, known := range s.config.CollectedStates {
		if known.NodeID == fromID {
			return false
		}
	}
	s.config.CollectedStates = append(s.config.CollectedStates, state)
	return true
}

// QuorumReached reports whether as many states were collected as peers are expected.
func (s *Store) QuorumReached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.config.CollectedStates) >= int(s.config.ExpectedNodeCount)
}

// TakeTrapModeJustArmed consumes the arming edge.
func (s *Store) TakeTrapModeJustArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.config.TrapModeJustArmed
	s.config.TrapModeJustArmed = false
	return armed
}

// AddCandidateParent records an advertised parent candidate.
func (s *Store) AddCandidateParent(id uint32) {
	if id == entities.UnsetNodeID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config.CandidateParentIDs == nil {
		s.config.CandidateParentIDs = map[uint32]struct{}{}
	}
	s.config.CandidateParentIDs[id] = struct{}{}
}

// UpdateNodeNum sets next cycle's quorum target: the visible peers minus those that
// reported a dead battery this cycle.
func (s *Store) UpdateNodeNum(peerIDs []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := map[uint32]struct{}{}
	for _, state := range s.config.CollectedStates {
		if state.BatteryDead {
			dead[state.NodeID] = struct{}{}
		}
	}
	count := 0
	for _, id := range peerIDs {
		if _, isDead := dead[id]; !isDead && id != s.config.NodeID {
			count++
		}
	}
	s.config.ExpectedNodeCount = uint8(clamp(count, 0, maxNodeCount))
}

// ResetCycle discards everything gathered during the previous armed cycle.
func (s *Store) ResetCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.CandidateParentIDs = map[uint32]struct{}{}
	s.config.CollectedStates = nil
	s.config.SendStateAcked = false
	s.config.SleepRequested = false
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
