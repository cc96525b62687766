package savings

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

// DefaultMaxLookbackDays bounds the backward walk when the caller supplies no cap
const DefaultMaxLookbackDays = 90

// ErrInsufficientHistory is returned when the lookback cap is reached before
// enough comparison days were found
var ErrInsufficientHistory = errors.New("insufficient comparison days within lookback")

// DayClass groups days that are compared with each other
type DayClass int

const (
	Weekday DayClass = iota
	Weekend
)

func (c DayClass) String() string {
	if c == Weekend {
		return "weekend"
	}
	return "weekday"
}

// ClassOf returns the day class of t's calendar day
func ClassOf(t time.Time) DayClass {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	default:
		return Weekday
	}
}

// TargetCountFor returns how many comparison days a session of the given class needs
func TargetCountFor(c DayClass) int {
	if c == Weekend {
		return 4
	}
	return 10
}

// startOfDay returns local midnight of t's calendar day
func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// IsDateValid reports whether no previous session starts on candidate's
// calendar day. Both midnights are treated as part of the day.
func IsDateValid(candidate time.Time, previous []Event) bool {
	dayStart := startOfDay(candidate)
	dayEnd := dayStart.AddDate(0, 0, 1)
	for _, session := range previous {
		if !session.Start.Before(dayStart) && !session.Start.After(dayEnd) {
			return false
		}
	}
	return true
}

// CandidateDays walks backwards one calendar day at a time starting the day
// before start. The sequence is unbounded; consumers must stop it.
func CandidateDays(start time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for days := 1; ; days++ {
			if !yield(start.AddDate(0, 0, -days)) {
				return
			}
		}
	}
}

// SelectComparisonDates picks the historical windows used to baseline event.
// Candidates must share the event's day class and not host a previous session.
// Windows are returned most recent first. If maxLookbackDays days are walked
// without reaching the target count, the windows found so far are returned
// along with an error wrapping ErrInsufficientHistory.
func SelectComparisonDates(event Event, previous []Event, maxLookbackDays int) ([]ComparisonWindow, error) {
	if maxLookbackDays <= 0 {
		maxLookbackDays = DefaultMaxLookbackDays
	}

	class := ClassOf(event.Start)
	target := TargetCountFor(class)
	duration := event.Duration()

	windows := make([]ComparisonWindow, 0, target)
	walked := 0
	for candidate := range CandidateDays(event.Start) {
		if len(windows) == target {
			return windows, nil
		}
		if walked == maxLookbackDays {
			break
		}
		walked++

		if !IsDateValid(candidate, previous) || ClassOf(candidate) != class {
			continue
		}
		windows = append(windows, ComparisonWindow{Start: candidate, End: candidate.Add(duration)})
	}

	return windows, fmt.Errorf("found %d of %d %s days in %d days: %w",
		len(windows), target, class, maxLookbackDays, ErrInsufficientHistory)
}
