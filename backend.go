package topicbus

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/topicbus/model"
)

// Backend orchestrates the pub/sub core: it keeps the in-memory topic
// registry, the permission matcher, the durable queue and the broker
// bindings consistent across publish, subscribe and unsubscribe, and it
// applies the broker-originated control messages that mutate configuration
// while request-serving code keeps reading it.
type Backend struct {
	registry      *TopicRegistry
	matcher       *PatternMatcher
	queue         QueueStore
	messages      MessageRepository
	topics        TopicRepository
	transport     BrokerTransport
	logger        Logger
	notifications NotificationService
	topicLocks    *topicLockSet
	clusterID     int64
}

// BackendOption configures a Backend.
type BackendOption func(*Backend) error

// NewBackend creates a Backend with the provided options.
//
// Required options:
//   - WithBackendStores: queue store, message and topic repositories
//   - WithBackendLogger: logger instance
//
// Optional options:
//   - WithBackendTransport: broker transport (default: NoopTransport)
//   - WithBackendNotifications: notification service (default: no-op)
//   - WithBackendClusterID: owning cluster (default: 1)
func NewBackend(opts ...BackendOption) (*Backend, error) {
	b := &Backend{
		registry:      NewTopicRegistry(),
		matcher:       NewPatternMatcher(),
		transport:     &NoopTransport{},
		notifications: &NoOpNotificationService{},
		topicLocks:    newTopicLockSet(),
		clusterID:     1,
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply backend option", err)
		}
	}

	if b.queue == nil {
		return nil, NewError(ErrCodeConfiguration, "QueueStore is required (use WithBackendStores)")
	}
	if b.messages == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithBackendStores)")
	}
	if b.topics == nil {
		return nil, NewError(ErrCodeConfiguration, "TopicRepository is required (use WithBackendStores)")
	}
	if b.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithBackendLogger)")
	}

	return b, nil
}

// WithBackendStores sets the required storage dependencies.
func WithBackendStores(queue QueueStore, messages MessageRepository, topics TopicRepository) BackendOption {
	return func(b *Backend) error {
		if queue == nil {
			return fmt.Errorf("queue store cannot be nil")
		}
		if messages == nil {
			return fmt.Errorf("message repository cannot be nil")
		}
		if topics == nil {
			return fmt.Errorf("topic repository cannot be nil")
		}
		b.queue = queue
		b.messages = messages
		b.topics = topics
		return nil
	}
}

// WithBackendLogger sets the logger instance.
func WithBackendLogger(logger Logger) BackendOption {
	return func(b *Backend) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// WithBackendTransport sets the broker transport.
func WithBackendTransport(transport BrokerTransport) BackendOption {
	return func(b *Backend) error {
		if transport == nil {
			return fmt.Errorf("transport cannot be nil")
		}
		b.transport = transport
		return nil
	}
}

// WithBackendNotifications sets the notification service.
func WithBackendNotifications(n NotificationService) BackendOption {
	return func(b *Backend) error {
		if n == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		b.notifications = n
		return nil
	}
}

// WithBackendClusterID sets the owning cluster ID.
func WithBackendClusterID(clusterID int64) BackendOption {
	return func(b *Backend) error {
		if clusterID <= 0 {
			return fmt.Errorf("cluster ID must be positive")
		}
		b.clusterID = clusterID
		return nil
	}
}

// Matcher returns the backend's permission matcher. The security layer
// feeds principal permission lists into it via AddClient/SetPermissions.
func (b *Backend) Matcher() *PatternMatcher {
	return b.matcher
}

// Registry returns the backend's in-memory topic registry.
func (b *Backend) Registry() *TopicRegistry {
	return b.registry
}

// ClusterID returns the owning cluster ID.
func (b *Backend) ClusterID() int64 {
	return b.clusterID
}

// PublishRequest is a request to publish one message.
type PublishRequest struct {
	CID               string // Correlation ID
	TopicName         string
	Username          string // Publishing principal, checked against the matcher
	Data              string
	Priority          int    // model.PriorityMin..Max, out of range falls back to default
	ExpirationSeconds int    // Relative expiry; <=0 falls back to DefaultExpirationSeconds
	CorrelID          string
	InReplyTo         string
	ExtClientID       string
}

// DefaultExpirationSeconds is applied when a publish request carries no
// expiration.
const DefaultExpirationSeconds = 86400

// Publish authorizes the publisher, durably records the message, fans it
// out to every active subscription's queue and hands it to the broker
// transport.
//
// Authorization failures yield IsOK=false, not an error. The topic is
// auto-created when unknown.
func (b *Backend) Publish(ctx context.Context, req PublishRequest) (*model.PubResponse, error) {
	resp := &model.PubResponse{CID: req.CID}

	check := b.matcher.Evaluate(req.Username, req.TopicName, OperationPublish)
	if !check.IsOK {
		b.logger.Warnf("[%s] Publish denied for %s on topic %s: %s", req.CID, req.Username, req.TopicName, check.Reason)
		resp.Reason = check.Reason
		return resp, nil
	}

	topic, err := b.ensureTopic(ctx, req.CID, "publish", req.TopicName)
	if err != nil {
		return nil, err
	}

	expiration := req.ExpirationSeconds
	if expiration <= 0 {
		expiration = DefaultExpirationSeconds
	}
	msg := model.NewMessage(b.clusterID, topic.ID, req.TopicName, req.Data, req.Username, req.Priority, expiration)
	msg.CorrelID = req.CorrelID
	msg.InReplyTo = req.InReplyTo
	msg.ExtClientID = req.ExtClientID

	if _, err := b.messages.Save(ctx, &msg); err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save message", err)
	}

	// Fan out to the queue of every current subscriber. The registry tells
	// us who they are without a scan.
	subs := b.registry.SubscriptionsForTopic(req.TopicName)
	if len(subs) > 0 {
		subKeys := make([]string, 0, len(subs))
		for _, sub := range subs {
			subKeys = append(subKeys, sub.SubKey)
		}
		inserted, err := b.queue.EnqueueForSubKeys(ctx, b.clusterID, topic.ID, msg.PubMsgID, subKeys)
		if err != nil {
			return nil, NewErrorWithCause(ErrCodeDatabase, "failed to fan out message", err)
		}
		b.logger.Debugf("[%s] Fanned out %s to %d queues", req.CID, msg.PubMsgID, inserted)
	}

	if err := b.transport.Publish(ctx, queueMessageFromModel(msg), ExchangeName, req.TopicName); err != nil {
		return nil, NewErrorWithCause(ErrCodeTransport, "failed to publish to broker", err)
	}

	b.logger.Infof("[%s] Published %s to topic %s (username=%s)", req.CID, msg.PubMsgID, req.TopicName, req.Username)

	resp.IsOK = true
	resp.MsgID = msg.PubMsgID
	return resp, nil
}

// RegisterSubscriptionRequest is a request to subscribe a principal to a
// topic.
type RegisterSubscriptionRequest struct {
	CID                  string
	TopicName            string
	Username             string
	SecName              string // Defaults to Username when empty
	SubKey               string // Generated when empty
	ShouldCreateBindings bool
}

// RegisterSubscription subscribes a principal to a topic: it validates the
// subscribe permission, records the subscription in the registry, backfills
// the subscriber's queue with the topic's undelivered messages and, when
// requested, creates the physical broker bindings.
//
// Partial failure never leaves inconsistent state: if backfill or binding
// creation fails, the registry entry and any queue rows are removed before
// the error is returned.
func (b *Backend) RegisterSubscription(ctx context.Context, req RegisterSubscriptionRequest) (model.StatusResponse, error) {
	resp := model.StatusResponse{CID: req.CID}

	check := b.matcher.Evaluate(req.Username, req.TopicName, OperationSubscribe)
	if !check.IsOK {
		b.logger.Warnf("[%s] Subscribe denied for %s on topic %s: %s", req.CID, req.Username, req.TopicName, check.Reason)
		resp.Details = check.Reason
		return resp, nil
	}

	secName := req.SecName
	if secName == "" {
		secName = req.Username
	}
	subKey := req.SubKey
	if subKey == "" {
		// A repeat subscribe keeps the principal's sub_key, and with it
		// the queue rows and bindings already accumulated under it.
		if existing, ok := b.registry.FindSubKey(req.Username, req.TopicName); ok {
			subKey = existing
		} else {
			subKey = model.NewSubKey(secName)
		}
	}

	b.logger.Infof("[%s] Subscribing %s to topic %s (sk=%s)", req.CID, secName, req.TopicName, subKey)

	topic, err := b.ensureTopic(ctx, req.CID, "subscribe", req.TopicName)
	if err != nil {
		return resp, err
	}

	sub := model.NewSubscription(req.TopicName, secName, req.Username, subKey)
	b.registry.AddSubscription(sub)

	// Backfill existing undelivered messages under the topic's advisory
	// lock: the eligibility read and the queue insert must appear atomic
	// relative to other fan-out for the same topic.
	lock := b.topicLocks.get(req.TopicName)
	lock.Lock()
	_, err = b.queue.MoveMessagesToSubQueue(ctx, b.clusterID, topic.ID, subKey, time.Now().UTC())
	lock.Unlock()
	if err != nil {
		b.registry.RemoveSubscription(req.TopicName, req.Username)
		return resp, NewErrorWithCause(ErrCodeDatabase, "failed to backfill subscriber queue", err)
	}

	if req.ShouldCreateBindings {
		if err := b.transport.CreateBindings(ctx, req.CID, subKey, ExchangeName, subKey, req.TopicName); err != nil {
			// Compensate: no registry entry and no queue may outlive a
			// failed binding.
			b.registry.RemoveSubscription(req.TopicName, req.Username)
			if _, cleanupErr := b.queue.DeleteQueueForSubKey(ctx, b.clusterID, subKey); cleanupErr != nil {
				b.logger.Errorf("[%s] Failed to clean up queue for %s after binding failure: %v", req.CID, subKey, cleanupErr)
			}
			return resp, NewErrorWithCause(ErrCodeTransport, "failed to create subscription bindings", err)
		}
	}

	if err := b.notifications.NotifySubscriptionRegistered(ctx, *sub); err != nil {
		b.logger.Warnf("[%s] Failed to send subscription notification: %v", req.CID, err)
	}

	resp.IsOK = true
	return resp, nil
}

// UnregisterSubscription removes a principal's subscription. When
// TopicName is empty, every topic is searched for the principal's
// subscription. A missing subscription yields IsOK=false, not an error.
func (b *Backend) UnregisterSubscription(ctx context.Context, cid, topicName, username string) (model.StatusResponse, error) {
	resp := model.StatusResponse{CID: cid}

	if topicName == "" {
		foundTopic, _, ok := b.registry.FindSubKeyAnyTopic(username)
		if !ok {
			resp.Details = "subscription not found"
			return resp, nil
		}
		topicName = foundTopic
	}

	b.logger.Infof("[%s] Unsubscribing %s from topic %s", cid, username, topicName)

	sub, ok := b.registry.RemoveSubscription(topicName, username)
	if !ok {
		resp.Details = "subscription not found"
		return resp, nil
	}

	if _, err := b.queue.DeleteQueueForSubKey(ctx, b.clusterID, sub.SubKey); err != nil {
		return resp, NewErrorWithCause(ErrCodeDatabase, "failed to delete subscriber queue", err)
	}

	if err := b.transport.DeleteBindings(ctx, cid, sub.SubKey, ExchangeName, topicName); err != nil {
		return resp, NewErrorWithCause(ErrCodeTransport, "failed to delete subscription bindings", err)
	}

	if err := b.notifications.NotifySubscriptionUnregistered(ctx, *sub); err != nil {
		b.logger.Warnf("[%s] Failed to send unsubscription notification: %v", cid, err)
	}

	resp.IsOK = true
	return resp, nil
}

// ensureTopic returns the durable topic row for topicName, creating the
// topic in the registry and the store when it is unknown.
func (b *Backend) ensureTopic(ctx context.Context, cid, source, topicName string) (model.Topic, error) {
	if !b.registry.HasTopic(topicName) {
		// Another worker, or an earlier run of this one, may already hold
		// the durable row. The registry is per-process, so check the store
		// before inserting.
		row, err := b.topics.GetByName(ctx, topicName)
		if err != nil && !IsNoData(err) {
			return model.Topic{}, NewErrorWithCause(ErrCodeDatabase, "failed to load topic", err)
		}
		if err == nil {
			b.registry.AddTopic(topicName, &row)
			return row, nil
		}

		topic := model.NewTopic(topicName)
		saved, err := b.topics.Save(ctx, &topic)
		if err != nil {
			return model.Topic{}, NewErrorWithCause(ErrCodeDatabase, "failed to save topic", err)
		}
		b.registry.AddTopic(topicName, saved)
		b.logger.Infof("[%s] Created new topic: %s (%s)", cid, topicName, source)
		return *saved, nil
	}

	topic, _ := b.registry.GetTopic(topicName)
	if topic.ID == 0 {
		// Registry entry predates the durable row, e.g. created by a
		// control message. Resolve the row now.
		row, err := b.topics.GetByName(ctx, topicName)
		if err != nil && !IsNoData(err) {
			return model.Topic{}, NewErrorWithCause(ErrCodeDatabase, "failed to load topic", err)
		}
		if IsNoData(err) {
			saved, saveErr := b.topics.Save(ctx, topic)
			if saveErr != nil {
				return model.Topic{}, NewErrorWithCause(ErrCodeDatabase, "failed to save topic", saveErr)
			}
			return *saved, nil
		}
		topic.ID = row.ID
		return row, nil
	}
	return *topic, nil
}

func queueMessageFromModel(m model.Message) model.QueueMessage {
	return model.QueueMessage{
		MsgID:          m.PubMsgID,
		TopicID:        m.TopicID,
		TopicName:      m.TopicName,
		Data:           m.Data,
		Priority:       m.Priority,
		Size:           m.Size,
		Publisher:      m.Publisher,
		CorrelID:       m.CorrelID,
		InReplyTo:      m.InReplyTo,
		ExtClientID:    m.ExtClientID,
		PubTime:        m.ExtPubTime,
		ExpirationTime: m.ExpirationTime,
	}
}
