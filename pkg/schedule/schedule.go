// Package schedule computes when an armed module wakes next and how long each hardware
// sleep segment lasts. Every function is pure.
package schedule

import (
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
)

// hours in two days plus one: enough to reach any window start from any instant
const maxSlotSearch = 49

// ComputeNextWakeTime returns the first top-of-hour slot after now that is at least
// minGap away and whose hour lies in the active window.
//
// Inside the window this is the next hour, or the one after when the next hour is too
// soon; when that slot has left the window the search lands on the next day's start.
// Before the window it is today's start (start+1h when start is too soon), and after the
// window it is the next day's start with the same adjustment.
func ComputeNextWakeTime(now time.Time, window entities.ActiveWindow, minGap time.Duration) time.Time {
	base := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	for k := 1; k <= maxSlotSearch; k++ {
		slot := base.Add(time.Duration(k) * time.Hour)
		if slot.Sub(now) < minGap {
			continue
		}
		if window.Contains(slot.Hour()) {
			return slot
		}
	}
	// unreachable for windows that contain at least one hour
	return base.Add(24 * time.Hour)
}

// ComputeSleepDuration returns the length of the next hardware sleep segment. When a
// real-time reference from the current counter epoch is set, now is replaced by the
// reference time plus the local milliseconds elapsed since it was captured. A remaining duration longer than
// maxHardwareSleep is split so the final segment is never shorter than half the ceiling.
// Callers re-invoke it after every hardware wake until the wake time is reached.
func ComputeSleepDuration(now, wakeTime time.Time, maxHardwareSleep time.Duration, ref entities.RealTimeRef, localMillis int64) time.Duration {
	if corrected, ok := ref.Resolve(localMillis); ok {
		now = corrected
	}
	remaining := wakeTime.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return AdjustSegment(remaining, maxHardwareSleep)
}

// AdjustSegment caps one sleep segment to the hardware ceiling.
func AdjustSegment(remaining, maxHardwareSleep time.Duration) time.Duration {
	if maxHardwareSleep <= 0 || remaining <= maxHardwareSleep {
		return remaining
	}
	if remaining-maxHardwareSleep > maxHardwareSleep/2 {
		return maxHardwareSleep
	}
	return maxHardwareSleep / 2
}

// PlanSegments lists every segment needed to cover the whole duration, applying
// AdjustSegment repeatedly.
func PlanSegments(total, maxHardwareSleep time.Duration) []time.Duration {
	var segments []time.Duration
	for total > 0 {
		segment := AdjustSegment(total, maxHardwareSleep)
		if segment <= 0 {
			break
		}
		segments = append(segments, segment)
		total -= segment
	}
	return segments
}
