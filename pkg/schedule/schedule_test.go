package schedule

import (
	"testing"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/stretchr/testify/assert"
)

const gap = 15 * time.Minute

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 5, day, hour, minute, 0, 0, time.UTC)
}

func TestComputeNextWakeTime(t *testing.T) {
	dayWindow := entities.ActiveWindow{Start: 8, End: 20}
	testCases := []struct {
		name     string
		now      time.Time
		window   entities.ActiveWindow
		expected time.Time
	}{
		{"inside window wakes next hour", at(1, 13, 30), dayWindow, at(1, 14, 0)},
		{"inside window skips a too soon hour", at(1, 13, 50), dayWindow, at(1, 15, 0)},
		{"inside window exactly at threshold keeps next hour", at(1, 13, 45), dayWindow, at(1, 14, 0)},
		{"next hour is window end snaps to next day start", at(1, 19, 10), dayWindow, at(2, 8, 0)},
		{"two hours ahead outside window snaps to next day start", at(1, 18, 50), dayWindow, at(2, 8, 0)},
		{"before start wakes at start", at(1, 6, 30), dayWindow, at(1, 8, 0)},
		{"start too soon wakes one hour after start", at(1, 7, 50), dayWindow, at(1, 9, 0)},
		{"after end wakes next day start", at(1, 21, 0), dayWindow, at(2, 8, 0)},
		{"midnight start too soon wakes at one", at(1, 23, 50), entities.ActiveWindow{Start: 0, End: 20}, at(2, 1, 0)},
		{"whole day window near midnight", at(1, 23, 50), entities.ActiveWindow{Start: 0, End: 24}, at(2, 1, 0)},
		{"overnight window after start", at(1, 22, 10), entities.ActiveWindow{Start: 20, End: 6}, at(1, 23, 0)},
		{"overnight window during day waits for evening", at(1, 12, 0), entities.ActiveWindow{Start: 20, End: 6}, at(1, 20, 0)},
		{"one hour window too soon rolls to next day", at(1, 7, 55), entities.ActiveWindow{Start: 8, End: 9}, at(2, 8, 0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ComputeNextWakeTime(tc.now, tc.window, gap))
		})
	}
}

func TestGivenOneMinuteGapThenNearHourIsKept(t *testing.T) {
	window := entities.ActiveWindow{Start: 8, End: 20}
	assert.Equal(t, at(1, 14, 0), ComputeNextWakeTime(at(1, 13, 50), window, time.Minute))
}

func TestComputeNextWakeTimeIsAlwaysInFutureAndInsideWindow(t *testing.T) {
	windows := []entities.ActiveWindow{
		{Start: 0, End: 24}, {Start: 8, End: 20}, {Start: 20, End: 6}, {Start: 23, End: 24},
		{Start: 0, End: 1}, {Start: 12, End: 13}, {Start: 5, End: 5},
	}
	start := at(1, 0, 0)
	for _, window := range windows {
		for step := 0; step < 24*60; step += 7 {
			now := start.Add(time.Duration(step) * time.Minute)
			wake := ComputeNextWakeTime(now, window, gap)
			assert.True(t, wake.After(now), "window %v now %v", window, now)
			assert.GreaterOrEqual(t, wake.Sub(now), gap, "window %v now %v", window, now)
			assert.True(t, window.Contains(wake.Hour()), "window %v now %v wake %v", window, now, wake)
		}
	}
}

func TestComputeSleepDuration(t *testing.T) {
	maxSleep := 70 * time.Minute
	now := at(1, 10, 0)
	testCases := []struct {
		name     string
		wake     time.Time
		expected time.Duration
	}{
		{"wake in the past", now.Add(-time.Minute), 0},
		{"within ceiling", now.Add(40 * time.Minute), 40 * time.Minute},
		{"exactly the ceiling", now.Add(maxSleep), maxSleep},
		{"long remainder takes full ceiling", now.Add(maxSleep + 36*time.Minute), maxSleep},
		{"short remainder takes half ceiling", now.Add(maxSleep + 20*time.Minute), maxSleep / 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ComputeSleepDuration(now, tc.wake, maxSleep, entities.RealTimeRef{}, 0))
		})
	}
}

func TestGivenRealTimeRefThenDriftIsCorrected(t *testing.T) {
	localNow := at(1, 10, 0)
	authoritative := at(1, 10, 5)
	ref := entities.RealTimeRef{Timestamp: authoritative, LocalMillis: 1000}

	duration := ComputeSleepDuration(localNow, at(1, 11, 0), 24*time.Hour, ref, 61000)

	// corrected now is 10:06, so 54 minutes remain
	assert.Equal(t, 54*time.Minute, duration)
}

func TestGivenRealTimeRefFromEarlierCounterEpochThenNodeClockIsUsed(t *testing.T) {
	localNow := at(1, 20, 0)
	ref := entities.RealTimeRef{Timestamp: at(1, 10, 0), LocalMillis: 5_000_000}

	duration := ComputeSleepDuration(localNow, at(1, 21, 0), 24*time.Hour, ref, 1000)

	assert.Equal(t, time.Hour, duration)
}

func TestComputeSleepDurationNeverReturnsAwkwardlyShortSegment(t *testing.T) {
	maxSleep := time.Hour
	now := at(1, 0, 0)
	for extra := time.Minute; extra < 5*time.Hour; extra += 7 * time.Minute {
		segment := ComputeSleepDuration(now, now.Add(maxSleep+extra), maxSleep, entities.RealTimeRef{}, 0)
		assert.False(t, segment > 0 && segment < maxSleep/2, "extra %v segment %v", extra, segment)
	}
}

func TestPlanSegmentsCoversWholeDuration(t *testing.T) {
	maxSleep := time.Hour
	for _, total := range []time.Duration{30 * time.Minute, 80 * time.Minute, 100 * time.Minute, 10 * time.Hour} {
		segments := PlanSegments(total, maxSleep)
		var sum time.Duration
		for _, segment := range segments {
			assert.LessOrEqual(t, segment, maxSleep)
			sum += segment
		}
		assert.Equal(t, total, sum)
	}
	assert.Equal(t, []time.Duration{30 * time.Minute, 50 * time.Minute}, PlanSegments(80*time.Minute, maxSleep))
}
