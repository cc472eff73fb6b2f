package mesh

import (
	"testing"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGivenRequestWithSettingsThenBothIntentsAreDecoded(t *testing.T) {
	raw := EncodeRequestState(42, entities.ConfigPatch{ActiveStart: entities.IntPtr(8), ActiveEnd: entities.IntPtr(20)})

	messages, err := Decode(raw)

	require.NoError(t, err)
	require.Len(t, messages, 2)
	update, ok := messages[0].(ConfigUpdate)
	require.True(t, ok)
	assert.Equal(t, 8, *update.Patch.ActiveStart)
	assert.Nil(t, update.Patch.ParentNodeID)
	assert.Equal(t, RequestState{ParentID: 42}, messages[1])
}

func TestGivenSyncSleepWithOtherKeysThenSyncSleepComesLast(t *testing.T) {
	raw := []byte(`{"sync_sleep":true,"wake_time":1714575600,"current_time":1714572000,"config_update":true,"trap_fire":true,"get_gps":true}`)

	messages, err := Decode(raw)

	require.NoError(t, err)
	require.Len(t, messages, 3)
	update := messages[0].(ConfigUpdate)
	assert.Nil(t, update.Patch.WakeTime)
	assert.True(t, *update.Patch.EventFired)
	assert.Equal(t, GetGps{}, messages[1])
	sync := messages[2].(SyncSleep)
	assert.Equal(t, time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC), sync.WakeTime)
	assert.Equal(t, time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC), sync.CurrentTime)
}

func TestModuleStateRoundTrip(t *testing.T) {
	state := entities.PeerState{NodeID: 7, BatteryLevel: 3.85, BatteryDead: true, EventFired: true, CameraEnabled: true}

	messages, err := Decode(EncodeModuleState(state))

	require.NoError(t, err)
	assert.Equal(t, []Message{ModuleState{State: state}}, messages)
}

func TestPictureIsCarriedAsBase64(t *testing.T) {
	messages, err := Decode(EncodePicture([]byte{0xff, 0xd8, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, []Message{Picture{Image: []byte{0xff, 0xd8, 0x00}}}, messages)
}

func TestGivenUnflaggedSettingsThenNoConfigUpdateIsDecoded(t *testing.T) {
	messages, err := Decode([]byte(`{"active_start":3}`))
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestGivenGarbageThenDecodeFails(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestSimpleIntents(t *testing.T) {
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	testCases := []struct {
		name     string
		raw      []byte
		expected Message
	}{
		{"parent info", EncodeParentInfo(9), ParentInfo{ParentID: 9}},
		{"real time", EncodeRealTime(now), RealTime{Timestamp: now}},
		{"init gps", EncodeInitGps(), InitGps{}},
		{"get gps", EncodeGetGps(), GetGps{}},
		{"debug", EncodeDebug("hello"), Debug{Text: "hello"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			messages, err := Decode(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, []Message{tc.expected}, messages)
		})
	}
}
