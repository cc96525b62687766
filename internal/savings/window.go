package savings

import (
	"iter"
	"time"
)

// PeriodLength is the granularity at which baselines are calculated
const PeriodLength = 30 * time.Minute

// Window is a closed time interval
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ComparisonWindow is a historical interval congruent to a saving session
type ComparisonWindow = Window

// Duration returns the length of the window
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t lies within [Start, End] inclusive
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ContainsFully reports whether both ends of inner lie within outer (inclusive)
func ContainsFully(outer, inner Window) bool {
	return outer.Contains(inner.Start) && outer.Contains(inner.End)
}

// ThirtyMinutePeriods splits a window into consecutive 30 minute slices.
// A slice is produced for every start before w.End, so the last slice
// overruns w.End when the window is not a multiple of 30 minutes.
func ThirtyMinutePeriods(w Window) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		for current := w.Start; current.Before(w.End); current = current.Add(PeriodLength) {
			if !yield(Window{Start: current, End: current.Add(PeriodLength)}) {
				return
			}
		}
	}
}

// Periods collects ThirtyMinutePeriods into a slice
func Periods(w Window) []Window {
	var periods []Window
	for period := range ThirtyMinutePeriods(w) {
		periods = append(periods, period)
	}
	return periods
}
