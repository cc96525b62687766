package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-savings/pkg/metrics"
	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
)

// Listener stores saving sessions announced over MQTT
type Listener struct {
	mqtt    mqtt.Client
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewListener creates a listener writing to store
func NewListener(mqttClient mqtt.Client, store Store, logger *slog.Logger) *Listener {
	return &Listener{
		mqtt:   mqttClient,
		store:  store,
		logger: logger,
	}
}

// WithMetrics enables the session counter
func (l *Listener) WithMetrics(m *metrics.Metrics) *Listener {
	l.metrics = m
	return l
}

// Subscribe starts receiving announcements. The MQTT client must be connected.
func (l *Listener) Subscribe() error {
	if err := l.mqtt.Subscribe(mqtt.TopicSavingSessions, 1, l.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicSavingSessions, err)
	}
	return nil
}

func (l *Listener) handleMessage(msg mqtt.Message) {
	topic := msg.Topic()

	event, err := ParseAnnouncement(msg.Payload())
	if err != nil {
		l.logger.Error("Failed to parse saving session", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Upsert(ctx, event); err != nil {
		l.logger.Error("Failed to store saving session", "session_id", event.ID, "error", err)
		return
	}
	l.metrics.SessionUpdated()

	l.logger.Info("Saving session announced",
		"source", mqtt.LastSegment(topic),
		"session_id", event.ID,
		"start", event.Start,
		"end", event.End,
		"retained", msg.Retained())
}
