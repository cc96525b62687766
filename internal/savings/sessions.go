package savings

import "time"

// Event is a saving session: a time-bounded window during which consumption
// reduction is measured
type Event struct {
	ID         string    `json:"id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	OctoPoints int       `json:"octopoints_per_kwh,omitempty"`
}

// Window returns the interval covered by the event
func (e Event) Window() Window {
	return Window{Start: e.Start, End: e.End}
}

// Duration returns the length of the event
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// CurrentSession returns the first event running at now (inclusive of both ends)
func CurrentSession(now time.Time, events []Event) *Event {
	for i := range events {
		if events[i].Window().Contains(now) {
			return &events[i]
		}
	}
	return nil
}

// NextSession returns the earliest event starting after now
func NextSession(now time.Time, events []Event) *Event {
	var next *Event
	for i := range events {
		if events[i].Start.After(now) && (next == nil || events[i].Start.Before(next.Start)) {
			next = &events[i]
		}
	}
	return next
}

// ActiveOrNext returns the running event, falling back to the next upcoming one
func ActiveOrNext(now time.Time, events []Event) *Event {
	if current := CurrentSession(now, events); current != nil {
		return current
	}
	return NextSession(now, events)
}

// PreviousSessions returns every known event except the given one
func PreviousSessions(event Event, events []Event) []Event {
	previous := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Start.Equal(event.Start) && e.End.Equal(event.End) && e.ID == event.ID {
			continue
		}
		previous = append(previous, e)
	}
	return previous
}
