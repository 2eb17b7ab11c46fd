package interfaces

import "context"

// BusTopic represents different message types on the internal bus
type BusTopic string

const (
	TopicDeltaDetected   BusTopic = "delta_detected"
	TopicClusterDetected BusTopic = "cluster_detected"
	TopicEventDetected   BusTopic = "event_detected"
	TopicTriggerDetected BusTopic = "trigger_detected"
	TopicBaselineUpdated BusTopic = "baseline_updated"
)

// BusMessage represents a message on the internal bus
type BusMessage struct {
	Topic   BusTopic
	Entity  string
	Payload interface{}
}

// BusHandler is a function that handles bus messages
type BusHandler func(ctx context.Context, msg BusMessage) error

// EventBus manages pub/sub messaging between pipeline stages
type EventBus interface {
	// Subscribe to a topic
	Subscribe(topic BusTopic, handler BusHandler) error

	// Publish a message to all subscribers asynchronously
	Publish(ctx context.Context, msg BusMessage) error

	// PublishSync publishes and waits for all handlers to complete
	PublishSync(ctx context.Context, msg BusMessage) error

	// Close shuts down the bus
	Close() error
}
