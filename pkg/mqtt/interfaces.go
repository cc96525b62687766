package mqtt

import "context"

// Client is the broker connection shared by the consumption collector, the
// session listener and the baseline publisher
type Client interface {
	// Connect dials the broker and registers the retained offline status as
	// last will
	Connect(ctx context.Context) error

	// Disconnect publishes the offline status and closes the connection
	Disconnect()

	// Subscribe registers handler for topic, which may hold + or # wildcards
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish sends payload to topic. Savings context snapshots are published
	// retained so a late subscriber sees the current baseline at once.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected backs the mqtt entry of the health endpoints
	IsConnected() bool
}

// MessageHandler receives messages for a subscription
type MessageHandler func(Message)

// Message is a received consumption reading, session announcement or time
// configuration
type Message interface {
	// Topic is the concrete topic, from which meter and provider are taken
	Topic() string

	// Payload is the raw JSON body
	Payload() []byte

	// Retained is true when the broker replays a stored announcement on
	// subscribe rather than forwarding a live one
	Retained() bool
}
