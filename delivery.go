package topicbus

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/topicbus/model"
	"github.com/coregx/topicbus/retry"
)

// DeliveryCoordinator leases batches of queued messages to consumers,
// tracks acknowledgement and discard, and runs the redelivery reaper that
// turns abandoned leases back into deliverable messages.
//
// Leasing is delegated to the QueueStore, which executes each lease inside
// one storage transaction with row locks, so the coordinator itself needs
// no cross-process coordination. Safe for concurrent use.
type DeliveryCoordinator struct {
	queue         QueueStore
	messages      MessageRepository
	logger        Logger
	notifications NotificationService
	policy        retry.Policy
	batchSize     int
	clusterID     int64
}

// DeliveryOption configures a DeliveryCoordinator.
type DeliveryOption func(*DeliveryCoordinator) error

// NewDeliveryCoordinator creates a coordinator with the provided options.
//
// Required options:
//   - WithDeliveryQueueStore: the queue store
//   - WithDeliveryLogger: logger instance
//
// Optional options:
//   - WithDeliveryPolicy: redelivery policy (default: retry.DefaultPolicy())
//   - WithDeliveryBatchSize: default lease batch size (default: 100)
//   - WithDeliveryClusterID: owning cluster (default: 1)
//   - WithDeliveryMessageRepository: enables expired-message cleanup
//   - WithDeliveryNotifications: notification service (default: no-op)
func NewDeliveryCoordinator(opts ...DeliveryOption) (*DeliveryCoordinator, error) {
	c := &DeliveryCoordinator{
		policy:        retry.DefaultPolicy(),
		batchSize:     100,
		clusterID:     1,
		notifications: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply delivery option", err)
		}
	}

	if c.queue == nil {
		return nil, NewError(ErrCodeConfiguration, "QueueStore is required (use WithDeliveryQueueStore)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithDeliveryLogger)")
	}
	if err := c.policy.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid redelivery policy", err)
	}

	return c, nil
}

// WithDeliveryQueueStore sets the queue store.
func WithDeliveryQueueStore(queue QueueStore) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		if queue == nil {
			return fmt.Errorf("queue store cannot be nil")
		}
		c.queue = queue
		return nil
	}
}

// WithDeliveryLogger sets the logger instance.
func WithDeliveryLogger(logger Logger) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithDeliveryPolicy sets the redelivery policy.
func WithDeliveryPolicy(policy retry.Policy) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		c.policy = policy
		return nil
	}
}

// WithDeliveryBatchSize sets the default lease batch size.
func WithDeliveryBatchSize(size int) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		c.batchSize = size
		return nil
	}
}

// WithDeliveryClusterID sets the owning cluster ID.
func WithDeliveryClusterID(clusterID int64) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		if clusterID <= 0 {
			return fmt.Errorf("cluster ID must be positive")
		}
		c.clusterID = clusterID
		return nil
	}
}

// WithDeliveryMessageRepository enables cleanup of expired, unreferenced
// messages during reaper sweeps.
func WithDeliveryMessageRepository(messages MessageRepository) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		if messages == nil {
			return fmt.Errorf("message repository cannot be nil")
		}
		c.messages = messages
		return nil
	}
}

// WithDeliveryNotifications sets the notification service.
func WithDeliveryNotifications(n NotificationService) DeliveryOption {
	return func(c *DeliveryCoordinator) error {
		if n == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		c.notifications = n
		return nil
	}
}

// Lease claims up to batchSize deliverable messages for subKey. A
// batchSize of 0 uses the coordinator's default. Returned messages are
// now WAITING_FOR_CONFIRMATION and invisible to other lease calls; they
// must be acknowledged or discarded, or the reaper requeues them after the
// redelivery timeout.
//
// An empty result is normal under contention: another lease call claimed
// the rows first.
func (c *DeliveryCoordinator) Lease(ctx context.Context, subKey string, batchSize int) ([]model.QueueMessage, error) {
	if batchSize <= 0 {
		batchSize = c.batchSize
	}
	msgs, err := c.queue.GetMessages(ctx, c.clusterID, subKey, batchSize, time.Now().UTC())
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to lease messages", err)
	}
	if len(msgs) > 0 {
		c.logger.Debugf("Leased %d messages for %s", len(msgs), subKey)
	}
	return msgs, nil
}

// Acknowledge finalizes delivery of the listed messages.
func (c *DeliveryCoordinator) Acknowledge(ctx context.Context, subKey string, msgIDs []string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	if err := c.queue.AcknowledgeDelivery(ctx, c.clusterID, subKey, msgIDs, time.Now().UTC()); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to acknowledge delivery", err)
	}
	c.logger.Debugf("Acknowledged %d messages for %s", len(msgIDs), subKey)
	return nil
}

// Discard flags the listed messages for deletion without delivering them.
func (c *DeliveryCoordinator) Discard(ctx context.Context, subKey string, msgIDs []string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	if err := c.queue.SetToDelete(ctx, c.clusterID, subKey, msgIDs, time.Now().UTC()); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to discard messages", err)
	}
	c.logger.Debugf("Discarded %d messages for %s", len(msgIDs), subKey)
	return nil
}

// Depth returns the number of deliverable messages waiting for subKey.
func (c *DeliveryCoordinator) Depth(ctx context.Context, subKey string) (int, error) {
	depth, err := c.queue.GetQueueDepthBySubKey(ctx, c.clusterID, subKey, time.Now().UTC())
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to read queue depth", err)
	}
	return depth, nil
}

// DepthByTopics returns the deliverable message count per topic ID.
func (c *DeliveryCoordinator) DepthByTopics(ctx context.Context, topicIDs []int64) (map[int64]int, error) {
	depths, err := c.queue.GetQueueDepthByTopicIDList(ctx, c.clusterID, topicIDs, time.Now().UTC())
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to read queue depths", err)
	}
	return depths, nil
}

// Sweep runs one reaper pass: exhausted leases are discarded, abandoned
// leases are requeued for redelivery and expired rows are removed. Returns
// the number of leases requeued.
func (c *DeliveryCoordinator) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	cutoff := c.policy.Cutoff(now)

	if c.policy.MaxDeliveryCount > 0 {
		discarded, err := c.queue.DiscardExhaustedLeases(ctx, c.clusterID, c.policy.MaxDeliveryCount, cutoff)
		if err != nil {
			return 0, NewErrorWithCause(ErrCodeDatabase, "failed to discard exhausted leases", err)
		}
		if discarded > 0 {
			c.logger.Warnf("Discarded %d messages after %d delivery attempts", discarded, c.policy.MaxDeliveryCount)
		}
	}

	requeued, err := c.queue.RequeueExpiredLeases(ctx, c.clusterID, cutoff)
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to requeue expired leases", err)
	}
	if requeued > 0 {
		if err := c.notifications.NotifyLeasesRequeued(ctx, requeued); err != nil {
			c.logger.Warnf("Failed to send requeue notification: %v", err)
		}
	}

	deleted, err := c.queue.DeleteExpired(ctx, c.clusterID, now)
	if err != nil {
		return requeued, NewErrorWithCause(ErrCodeDatabase, "failed to delete expired queue rows", err)
	}
	if deleted > 0 {
		c.logger.Infof("Removed %d expired queue rows", deleted)
	}

	if c.messages != nil {
		removed, err := c.messages.DeleteExpiredUnreferenced(ctx, c.clusterID, now)
		if err != nil {
			return requeued, NewErrorWithCause(ErrCodeDatabase, "failed to delete expired messages", err)
		}
		if removed > 0 {
			c.logger.Infof("Removed %d expired messages", removed)
		}
	}

	return requeued, nil
}

// Run starts the reaper loop, sweeping at the policy's interval until the
// context is canceled. This method blocks and is typically run in a
// goroutine.
func (c *DeliveryCoordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.policy.SweepInterval)
	defer ticker.Stop()

	c.logger.Info("Delivery reaper started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Delivery reaper stopped")
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.Errorf("Reaper sweep failed: %v", err)
			}
		}
	}
}
