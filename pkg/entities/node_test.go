package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGivenRegularWindowThenContainsOnlyInnerHours(t *testing.T) {
	window := ActiveWindow{Start: 8, End: 20}
	assert.False(t, window.Contains(7))
	assert.True(t, window.Contains(8))
	assert.True(t, window.Contains(19))
	assert.False(t, window.Contains(20))
}

func TestGivenWholeDayWindowThenContainsEveryHour(t *testing.T) {
	for _, window := range []ActiveWindow{{Start: 0, End: 24}, {Start: 5, End: 5}, {Start: 24, End: 24}} {
		for hour := 0; hour < 24; hour++ {
			assert.True(t, window.Contains(hour), "window %v hour %d", window, hour)
		}
	}
}

func TestGivenOvernightWindowThenWrapsMidnight(t *testing.T) {
	window := ActiveWindow{Start: 20, End: 6}
	assert.True(t, window.Contains(23))
	assert.True(t, window.Contains(0))
	assert.True(t, window.Contains(5))
	assert.False(t, window.Contains(6))
	assert.False(t, window.Contains(12))
}

func TestRealTimeRefResolveAddsElapsedMillis(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ref := RealTimeRef{Timestamp: base, LocalMillis: 1000}
	assert.True(t, ref.IsSet())
	resolved, ok := ref.Resolve(3500)
	assert.True(t, ok)
	assert.Equal(t, base.Add(2500*time.Millisecond), resolved)
	_, ok = ref.Resolve(10)
	assert.False(t, ok)
	_, ok = RealTimeRef{}.Resolve(3500)
	assert.False(t, ok)
}

func TestCloneDoesNotShareTransientCollections(t *testing.T) {
	config := NewDefaultNodeConfig()
	config.CandidateParentIDs[7] = struct{}{}
	config.CollectedStates = append(config.CollectedStates, PeerState{NodeID: 7})

	clone := config.Clone()
	clone.CandidateParentIDs[9] = struct{}{}
	clone.CollectedStates[0].NodeID = 9

	assert.Len(t, config.CandidateParentIDs, 1)
	assert.Equal(t, uint32(7), config.CollectedStates[0].NodeID)
}

func TestGivenEmptyPatchThenIsEmpty(t *testing.T) {
	assert.True(t, ConfigPatch{}.IsEmpty())
	assert.False(t, ConfigPatch{InitGPS: true}.IsEmpty())
	assert.False(t, ConfigPatch{Mode: ModePtr(ModeTrap)}.IsEmpty())
}
