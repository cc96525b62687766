// Package mqtttest provides an in-memory mqtt.Client for tests
package mqtttest

import (
	"context"
	"strings"
	"sync"

	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
)

// Published is a message captured by the fake
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Fake records publications and lets tests deliver messages to subscribers
type Fake struct {
	mu            sync.Mutex
	connected     bool
	subscriptions map[string]mqtt.MessageHandler
	published     []Published

	// ConnectErr and PublishErr are returned by Connect and Publish when set
	ConnectErr error
	PublishErr error
}

// New creates a disconnected fake
func New() *Fake {
	return &Fake{subscriptions: make(map[string]mqtt.MessageHandler)}
}

var _ mqtt.Client = (*Fake)(nil)

func (f *Fake) Connect(ctx context.Context) error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *Fake) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[topic] = handler
	return nil
}

func (f *Fake) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Subscribed reports whether a handler is registered for the exact filter
func (f *Fake) Subscribed(filter string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subscriptions[filter]
	return ok
}

// Deliver hands a message to every subscription whose filter matches topic
// and returns how many handlers ran
func (f *Fake) Deliver(topic string, payload []byte, retained bool) int {
	f.mu.Lock()
	var handlers []mqtt.MessageHandler
	for filter, handler := range f.subscriptions {
		if Match(filter, topic) {
			handlers = append(handlers, handler)
		}
	}
	f.mu.Unlock()

	for _, handler := range handlers {
		handler(&message{topic: topic, payload: payload, retained: retained})
	}
	return len(handlers)
}

// Messages returns everything published to topic, oldest first
func (f *Fake) Messages(topic string) []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Published
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Match implements MQTT topic filter matching with + and # wildcards
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *message) Topic() string   { return m.topic }
func (m *message) Payload() []byte { return m.payload }
func (m *message) Retained() bool  { return m.retained }
