package topicbus

import (
	"context"

	"github.com/coregx/topicbus/model"
)

// NotificationService is an optional interface for surfacing pub/sub
// lifecycle events (subscription changes, lease requeues) to monitoring or
// alerting systems.
type NotificationService interface {
	// NotifySubscriptionRegistered is called after a subscription is fully
	// registered, including its transport bindings.
	NotifySubscriptionRegistered(ctx context.Context, sub model.Subscription) error

	// NotifySubscriptionUnregistered is called after a subscription and its
	// queue entries are removed.
	NotifySubscriptionUnregistered(ctx context.Context, sub model.Subscription) error

	// NotifyLeasesRequeued is called when the reaper reverts abandoned
	// leases to the deliverable state.
	NotifyLeasesRequeued(ctx context.Context, count int) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
type NoOpNotificationService struct{}

// NotifySubscriptionRegistered does nothing.
func (n *NoOpNotificationService) NotifySubscriptionRegistered(_ context.Context, _ model.Subscription) error {
	return nil
}

// NotifySubscriptionUnregistered does nothing.
func (n *NoOpNotificationService) NotifySubscriptionUnregistered(_ context.Context, _ model.Subscription) error {
	return nil
}

// NotifyLeasesRequeued does nothing.
func (n *NoOpNotificationService) NotifyLeasesRequeued(_ context.Context, _ int) error {
	return nil
}

// LoggingNotificationService logs every notification.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifySubscriptionRegistered logs the registration.
func (n *LoggingNotificationService) NotifySubscriptionRegistered(_ context.Context, sub model.Subscription) error {
	n.logger.Infof("Subscription registered: topic=%s, username=%s, sub_key=%s",
		sub.TopicName, sub.Username, sub.SubKey)
	return nil
}

// NotifySubscriptionUnregistered logs the removal.
func (n *LoggingNotificationService) NotifySubscriptionUnregistered(_ context.Context, sub model.Subscription) error {
	n.logger.Infof("Subscription unregistered: topic=%s, username=%s, sub_key=%s",
		sub.TopicName, sub.Username, sub.SubKey)
	return nil
}

// NotifyLeasesRequeued logs the requeue count.
func (n *LoggingNotificationService) NotifyLeasesRequeued(_ context.Context, count int) error {
	n.logger.Warnf("Requeued %d unconfirmed leases for redelivery", count)
	return nil
}
