package consumption

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saaga0h/jeeves-savings/internal/savings"
)

// Processor handles parsing of consumption messages
type Processor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a new message processor
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{
		logger: logger,
		now:    time.Now,
	}
}

// Reading is a parsed consumption message
type Reading struct {
	MeterID       string
	OriginalTopic string
	Sample        savings.Sample
	CollectedAt   int64 // Unix milliseconds
}

type readingPayload struct {
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Consumption *float64 `json:"consumption"`
}

// ParseMessage parses a message published on automation/raw/consumption/{meter}.
// The payload is either {"data": {...}} or the bare reading object.
func (p *Processor) ParseMessage(topic string, payload []byte) (*Reading, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[3] == "" {
		p.logger.Warn("Invalid topic format", "topic", topic)
		return nil, fmt.Errorf("invalid topic format: %s (expected automation/raw/consumption/{meter})", topic)
	}
	meterID := parts[3]

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	body := payload
	if len(envelope.Data) > 0 {
		body = envelope.Data
	}

	var data readingPayload
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse reading: %w", err)
	}

	start, err := time.Parse(time.RFC3339, data.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start %q: %w", data.Start, err)
	}
	end, err := time.Parse(time.RFC3339, data.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end %q: %w", data.End, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("reading end %s is not after start %s", data.End, data.Start)
	}
	if data.Consumption == nil {
		return nil, fmt.Errorf("reading has no consumption value")
	}
	// Readings may start at most one period ahead of the local clock
	if start.After(p.now().Add(savings.PeriodLength)) {
		return nil, fmt.Errorf("reading start %s is in the future", data.Start)
	}

	reading := &Reading{
		MeterID:       meterID,
		OriginalTopic: topic,
		Sample: savings.Sample{
			Start:       start,
			End:         end,
			Consumption: *data.Consumption,
		},
		CollectedAt: time.Now().UnixMilli(),
	}

	p.logger.Debug("Parsed consumption reading",
		"meter_id", meterID,
		"start", start,
		"consumption", *data.Consumption)

	return reading, nil
}

// BuildTriggerPayload creates the payload published once a reading is stored
func (p *Processor) BuildTriggerPayload(reading *Reading) ([]byte, error) {
	payload := map[string]interface{}{
		"data":           reading.Sample,
		"original_topic": reading.OriginalTopic,
		"stored_at":      time.UnixMilli(reading.CollectedAt).UTC().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	return data, nil
}
