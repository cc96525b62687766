package consumption

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saaga0h/jeeves-savings/pkg/metrics"
	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
)

// Collector receives raw consumption readings over MQTT and stores them
type Collector struct {
	mqtt      mqtt.Client
	processor *Processor
	storage   *Storage
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewCollector creates a collector writing to storage
func NewCollector(mqttClient mqtt.Client, storage *Storage, logger *slog.Logger) *Collector {
	return &Collector{
		mqtt:      mqttClient,
		processor: NewProcessor(logger),
		storage:   storage,
		logger:    logger,
	}
}

// WithMetrics enables reading counters
func (c *Collector) WithMetrics(m *metrics.Metrics) *Collector {
	c.metrics = m
	return c
}

// Subscribe starts receiving readings. The MQTT client must be connected.
func (c *Collector) Subscribe() error {
	if err := c.mqtt.Subscribe(mqtt.TopicRawConsumption, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicRawConsumption, err)
	}
	return nil
}

// handleMessage processes incoming consumption messages
func (c *Collector) handleMessage(msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	c.logger.Debug("Received MQTT message", "topic", topic, "size", len(payload))

	reading, err := c.processor.ParseMessage(topic, payload)
	if err != nil {
		c.logger.Error("Failed to parse message", "topic", topic, "error", err)
		c.metrics.ReadingRejected()
		return
	}

	if err := c.storage.Store(context.Background(), reading); err != nil {
		c.logger.Error("Failed to store consumption sample",
			"meter_id", reading.MeterID,
			"error", err)
		c.metrics.ReadingRejected()
		return
	}
	c.metrics.ReadingStored(reading.MeterID)

	if err := c.publishTrigger(reading); err != nil {
		c.logger.Error("Failed to publish trigger message",
			"meter_id", reading.MeterID,
			"error", err)
	}
}

// publishTrigger announces a stored reading on automation/sensor/consumption/{meter}
func (c *Collector) publishTrigger(reading *Reading) error {
	triggerTopic := mqtt.ConsumptionTriggerTopic(reading.MeterID)

	payload, err := c.processor.BuildTriggerPayload(reading)
	if err != nil {
		return fmt.Errorf("failed to build trigger payload: %w", err)
	}

	if err := c.mqtt.Publish(triggerTopic, 0, false, payload); err != nil {
		return fmt.Errorf("failed to publish trigger: %w", err)
	}

	c.logger.Debug("Published trigger", "topic", triggerTopic)
	return nil
}
