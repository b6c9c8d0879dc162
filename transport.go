package topicbus

import (
	"context"

	"github.com/coregx/topicbus/model"
)

// ExchangeName is the broker exchange all topic messages flow through.
const ExchangeName = "topicbusapi"

// BrokerTransport carries messages between processes and manages the
// physical bindings behind subscriptions. Failures surface as errors so the
// lifecycle code can compensate for partial state.
type BrokerTransport interface {
	// Publish hands a message to the broker for the given exchange and
	// routing key (the topic name).
	Publish(ctx context.Context, msg model.QueueMessage, exchange, routingKey string) error

	// CreateBindings creates the physical queue/exchange bindings for a
	// subscription, keyed by sub_key.
	CreateBindings(ctx context.Context, cid, subKey, exchange, queueName, topicName string) error

	// DeleteBindings removes the physical bindings of a subscription.
	DeleteBindings(ctx context.Context, cid, subKey, exchange, topicName string) error
}

// NoopTransport is a no-op BrokerTransport for embedded or single-process
// deployments where the durable queue alone carries delivery.
type NoopTransport struct{}

// Publish does nothing.
func (t *NoopTransport) Publish(_ context.Context, _ model.QueueMessage, _, _ string) error {
	return nil
}

// CreateBindings does nothing.
func (t *NoopTransport) CreateBindings(_ context.Context, _, _, _, _, _ string) error {
	return nil
}

// DeleteBindings does nothing.
func (t *NoopTransport) DeleteBindings(_ context.Context, _, _, _, _ string) error {
	return nil
}
