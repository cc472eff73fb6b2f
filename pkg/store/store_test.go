package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type storeSuite struct {
	suite.Suite
	documents *storage.DocumentStoreMock
	hook      *test.Hook
	store     *Store
}

func (s *storeSuite) SetupTest() {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.hook = hook
	s.documents = new(storage.DocumentStoreMock)
	s.store = New(s.documents, "config.json", logrus.NewEntry(logger))
}

func (s *storeSuite) TestGivenMissingDocumentThenLoadKeepsDefaults() {
	s.documents.On("ReadDocument", "config.json").Return(nil, false)

	err := s.store.Load()

	assert.True(s.T(), errors.Is(err, ErrNoDocument))
	assert.Equal(s.T(), entities.NewDefaultNodeConfig().Mode, s.store.Snapshot().Mode)
	assert.Equal(s.T(), entities.DefaultWorkTime, s.store.Snapshot().WorkDuration)
}

func (s *storeSuite) TestGivenEmptyDocumentThenLoadKeepsDefaults() {
	s.documents.On("ReadDocument", "config.json").Return([]byte{}, true)

	err := s.store.Load()

	assert.True(s.T(), errors.Is(err, ErrNoDocument))
	assert.Equal(s.T(), entities.ModeInstall, s.store.Snapshot().Mode)
}

func (s *storeSuite) TestGivenMalformedDocumentThenLoadKeepsDefaults() {
	s.documents.On("ReadDocument", "config.json").Return([]byte(`{"trap_mode":tru`), true)

	err := s.store.Load()

	assert.Error(s.T(), err)
	config := s.store.Snapshot()
	assert.Equal(s.T(), entities.ActiveWindow{Start: 0, End: 24}, config.ActiveWindow)
	assert.NotNil(s.T(), config.CandidateParentIDs)
}

func (s *storeSuite) TestGivenInstallDocumentThenParentAndWakeFieldsAreDropped() {
	s.documents.On("ReadDocument", "config.json").
		Return([]byte(`{"trap_mode":false,"is_parent":true,"parent_id":9,"trap_fire":true,"wake_time":1714575600,"active_start":8}`), true)

	require.NoError(s.T(), s.store.Load())

	config := s.store.Snapshot()
	assert.False(s.T(), config.IsParent)
	assert.Equal(s.T(), uint32(0), config.ParentNodeID)
	assert.False(s.T(), config.EventFired)
	assert.True(s.T(), config.WakeTime.IsZero())
	assert.Equal(s.T(), uint8(8), config.ActiveWindow.Start)
}

func (s *storeSuite) TestGivenTrapDocumentThenLoadDoesNotRaiseArmingEdge() {
	s.documents.On("ReadDocument", "config.json").Return([]byte(`{"trap_mode":true,"wake_time":1714575600}`), true)

	require.NoError(s.T(), s.store.Load())

	assert.Equal(s.T(), entities.ModeTrap, s.store.Snapshot().Mode)
	assert.False(s.T(), s.store.TakeTrapModeJustArmed())
}

func (s *storeSuite) TestGivenWriteFailureThenSaveReportsFalse() {
	s.documents.On("WriteDocument", "config.json", mock.Anything).Return(false)

	assert.False(s.T(), s.store.Save())
	assert.Equal(s.T(), logrus.ErrorLevel, s.hook.LastEntry().Level)
}

func (s *storeSuite) TestSaveWritesOriginalKeys() {
	var written []byte
	s.documents.On("WriteDocument", "config.json", mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]byte) }).
		Return(true)
	s.store.ApplyUpdate(entities.ConfigPatch{Mode: entities.ModePtr(entities.ModeTrap), NodeCount: entities.IntPtr(3)})

	require.True(s.T(), s.store.Save())

	var doc map[string]interface{}
	require.NoError(s.T(), json.Unmarshal(written, &doc))
	assert.Equal(s.T(), true, doc["trap_mode"])
	assert.Equal(s.T(), float64(3), doc["node_num"])
	assert.Contains(s.T(), doc, "active_start")
	assert.Contains(s.T(), doc, "wake_time")
	s.documents.AssertExpectations(s.T())
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(storeSuite))
}

func newMemoryStore() *Store {
	logger, _ := test.NewNullLogger()
	return New(storage.NewMemoryStore(), "", logrus.NewEntry(logger))
}

func TestSaveThenLoadReproducesConfig(t *testing.T) {
	store := newMemoryStore()
	wake := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	atSleep := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	store.ApplyUpdate(entities.ConfigPatch{
		Mode:         entities.ModePtr(entities.ModeTrap),
		ActiveStart:  entities.IntPtr(8),
		ActiveEnd:    entities.IntPtr(20),
		WorkDuration: entities.DurationPtr(5 * time.Minute),
		WakeTime:     entities.TimePtr(wake),
		EventFired:   entities.BoolPtr(true),
		ParentNodeID: entities.Uint32Ptr(42),
		NodeCount:    entities.IntPtr(4),
		IsParent:     entities.BoolPtr(true),
		GPS:          &entities.GPS{Lat: "35.68", Lon: "139.76"},
	})
	store.Update(func(c *entities.NodeConfig) {
		c.BatteryDead = true
		c.CurrentTimeAtSleep = atSleep
		c.RealTimeRef = entities.RealTimeRef{Timestamp: atSleep, LocalMillis: 1234}
	})
	before := store.Snapshot()
	require.True(t, store.Save())

	store.Update(func(c *entities.NodeConfig) { *c = entities.NewDefaultNodeConfig() })
	require.NoError(t, store.Load())
	after := store.Snapshot()

	assert.Equal(t, before.Mode, after.Mode)
	assert.Equal(t, before.ActiveWindow, after.ActiveWindow)
	assert.Equal(t, before.WorkDuration, after.WorkDuration)
	assert.True(t, before.WakeTime.Equal(after.WakeTime))
	assert.Equal(t, before.EventFired, after.EventFired)
	assert.Equal(t, before.ParentNodeID, after.ParentNodeID)
	assert.Equal(t, before.ExpectedNodeCount, after.ExpectedNodeCount)
	assert.Equal(t, before.IsParent, after.IsParent)
	assert.Equal(t, before.GPS, after.GPS)
	assert.True(t, after.BatteryDead)
	assert.True(t, atSleep.Equal(after.CurrentTimeAtSleep))
	assert.Equal(t, int64(1234), after.RealTimeRef.LocalMillis)
}

func TestApplyUpdateClampsAndKeepsUnmentionedFields(t *testing.T) {
	store := newMemoryStore()
	store.ApplyUpdate(entities.ConfigPatch{GPS: &entities.GPS{Lat: "1", Lon: "2"}})

	store.ApplyUpdate(entities.ConfigPatch{
		ActiveStart:  entities.IntPtr(-3),
		ActiveEnd:    entities.IntPtr(30),
		WorkDuration: entities.DurationPtr(time.Second),
		NodeCount:    entities.IntPtr(1000),
	})

	config := store.Snapshot()
	assert.Equal(t, entities.ActiveWindow{Start: 0, End: 24}, config.ActiveWindow)
	assert.Equal(t, entities.MinWorkTime, config.WorkDuration)
	assert.Equal(t, uint8(255), config.ExpectedNodeCount)
	assert.Equal(t, entities.GPS{Lat: "1", Lon: "2"}, config.GPS)

	store.ApplyUpdate(entities.ConfigPatch{WorkDuration: entities.DurationPtr(time.Hour)})
	assert.Equal(t, entities.MaxWorkTime, store.Snapshot().WorkDuration)
}

func TestGivenInstallToTrapFlipThenArmingEdgeFiresOnce(t *testing.T) {
	store := newMemoryStore()
	trap := entities.ConfigPatch{Mode: entities.ModePtr(entities.ModeTrap)}

	store.ApplyUpdate(trap)
	store.ApplyUpdate(trap)

	assert.True(t, store.TakeTrapModeJustArmed())
	assert.False(t, store.TakeTrapModeJustArmed())
}

func TestGivenCurrentTimeInPatchThenClockHookRuns(t *testing.T) {
	store := newMemoryStore()
	var applied time.Time
	store.OnCurrentTime(func(t time.Time) { applied = t })
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	got, ok := store.ApplyUpdate(entities.ConfigPatch{CurrentTime: entities.TimePtr(now)})

	assert.True(t, ok)
	assert.Equal(t, now, got)
	assert.Equal(t, now, applied)
}

func TestGivenInitGpsThenCoordinatesAreCleared(t *testing.T) {
	store := newMemoryStore()
	store.ApplyUpdate(entities.ConfigPatch{GPS: &entities.GPS{Lat: "1", Lon: "2"}})
	store.ApplyUpdate(entities.ConfigPatch{InitGPS: true})
	assert.False(t, store.Snapshot().GPS.IsSet())
}

func TestRecordPeerStateIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.ApplyUpdate(entities.ConfigPatch{NodeCount: entities.IntPtr(2)})

	assert.True(t, store.RecordPeerState(7, entities.PeerState{BatteryLevel: 3.9}))
	assert.False(t, store.RecordPeerState(7, entities.PeerState{BatteryLevel: 3.1}))
	assert.False(t, store.QuorumReached())
	assert.True(t, store.RecordPeerState(8, entities.PeerState{}))

	config := store.Snapshot()
	assert.Len(t, config.CollectedStates, 2)
	assert.Equal(t, 3.9, config.CollectedStates[0].BatteryLevel)
	assert.True(t, store.QuorumReached())
}

func TestGivenZeroExpectedNodesThenQuorumIsImmediate(t *testing.T) {
	assert.True(t, newMemoryStore().QuorumReached())
}

func TestUpdateNodeNumSkipsDeadPeersAndSelf(t *testing.T) {
	store := newMemoryStore()
	store.Update(func(c *entities.NodeConfig) { c.NodeID = 1 })
	store.RecordPeerState(2, entities.PeerState{BatteryDead: true})
	store.RecordPeerState(3, entities.PeerState{})

	store.UpdateNodeNum([]uint32{1, 2, 3, 4})

	assert.Equal(t, uint8(2), store.Snapshot().ExpectedNodeCount)
}

func TestResetCycleClearsTransientState(t *testing.T) {
	store := newMemoryStore()
	store.AddCandidateParent(5)
	store.AddCandidateParent(entities.UnsetNodeID)
	store.RecordPeerState(5, entities.PeerState{})
	store.Update(func(c *entities.NodeConfig) {
		c.SendStateAcked = true
		c.SleepRequested = true
	})
	assert.Len(t, store.Snapshot().CandidateParentIDs, 1)

	store.ResetCycle()

	config := store.Snapshot()
	assert.Empty(t, config.CandidateParentIDs)
	assert.Empty(t, config.CollectedStates)
	assert.False(t, config.SendStateAcked)
	assert.False(t, config.SleepRequested)
}
