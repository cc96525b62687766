package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/jeeves-savings/internal/savings"
)

// ErrInvalidSession is returned for sessions that do not end after they start
var ErrInvalidSession = errors.New("invalid saving session")

// sessionRecord is the wire and file form of a session. Times are RFC3339.
type sessionRecord struct {
	ID         string `json:"id" yaml:"id"`
	Start      string `json:"start" yaml:"start"`
	End        string `json:"end" yaml:"end"`
	OctoPoints int    `json:"octopoints_per_kwh" yaml:"octopoints_per_kwh"`
}

func (r sessionRecord) toEvent() (savings.Event, error) {
	start, err := time.Parse(time.RFC3339, r.Start)
	if err != nil {
		return savings.Event{}, fmt.Errorf("invalid start %q: %w", r.Start, err)
	}
	end, err := time.Parse(time.RFC3339, r.End)
	if err != nil {
		return savings.Event{}, fmt.Errorf("invalid end %q: %w", r.End, err)
	}

	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}

	event := savings.Event{ID: id, Start: start, End: end, OctoPoints: r.OctoPoints}
	if err := validate(event); err != nil {
		return savings.Event{}, err
	}
	return event, nil
}

// ParseAnnouncement decodes a session published on
// automation/event/saving_session/{source}. Payloads may wrap the session in
// a "data" field. A missing id is replaced by a random uuid.
func ParseAnnouncement(payload []byte) (savings.Event, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return savings.Event{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	body := payload
	if len(envelope.Data) > 0 {
		body = envelope.Data
	}

	var record sessionRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return savings.Event{}, fmt.Errorf("failed to parse session: %w", err)
	}

	return record.toEvent()
}

func validate(event savings.Event) error {
	if event.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSession)
	}
	if !event.End.After(event.Start) {
		return fmt.Errorf("%w: %s ends at %s, not after start %s",
			ErrInvalidSession, event.ID, event.End.Format(time.RFC3339), event.Start.Format(time.RFC3339))
	}
	return nil
}
