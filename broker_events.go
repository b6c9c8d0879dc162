package topicbus

import (
	"context"
)

// Control events delivered by the broker when configuration objects are
// created, edited or deleted elsewhere in the cluster. Handlers mutate the
// registry and matcher while request-serving code keeps reading them, so
// all index updates happen under the registry's own lock.

// TopicEditEvent announces a topic rename.
type TopicEditEvent struct {
	CID          string `json:"cid"`
	OldTopicName string `json:"old_topic_name"`
	NewTopicName string `json:"new_topic_name"`
}

// TopicDeleteEvent announces a topic deletion.
type TopicDeleteEvent struct {
	CID       string `json:"cid"`
	TopicName string `json:"topic_name"`
}

// SubscriptionCreateEvent announces a subscription created elsewhere.
type SubscriptionCreateEvent struct {
	CID           string   `json:"cid"`
	SubKey        string   `json:"sub_key"`
	SecName       string   `json:"sec_name"`
	Username      string   `json:"username"`
	TopicNameList []string `json:"topic_name_list"`
}

// SubscriptionDeleteEvent announces a subscription deleted elsewhere.
type SubscriptionDeleteEvent struct {
	CID      string `json:"cid"`
	SubKey   string `json:"sub_key"`
	SecName  string `json:"sec_name"`
	Username string `json:"username"`
}

// OnTopicEdit applies a topic rename: the Topic object moves to the new
// key, every subscription under the old name is updated in place and
// re-indexed, and exact-match permissions referring to the old literal name
// are re-keyed so authorization keeps working.
//
// An unknown old topic is a deliberate no-op: the edit may arrive after a
// compensating delete.
func (b *Backend) OnTopicEdit(ctx context.Context, evt TopicEditEvent) {
	renamed, existed := b.registry.Rename(evt.OldTopicName, evt.NewTopicName)
	if !existed {
		b.logger.Infof("[%s] Topic %s not found, ignoring rename to %s", evt.CID, evt.OldTopicName, evt.NewTopicName)
		return
	}

	b.matcher.RenameTopicAll(evt.OldTopicName, evt.NewTopicName)

	if err := b.topics.Rename(ctx, evt.OldTopicName, evt.NewTopicName); err != nil && !IsNoData(err) {
		b.logger.Errorf("[%s] Failed to rename durable topic row %s -> %s: %v",
			evt.CID, evt.OldTopicName, evt.NewTopicName, err)
	}

	b.logger.Infof("[%s] Renamed topic %s -> %s (%d subscriptions moved)",
		evt.CID, evt.OldTopicName, evt.NewTopicName, len(renamed))
}

// OnTopicDelete removes a topic, unsubscribes every subscriber and drops
// the exact-match permissions that referred to the deleted name.
func (b *Backend) OnTopicDelete(ctx context.Context, evt TopicDeleteEvent) {
	b.logger.Infof("[%s] Deleting topic %s", evt.CID, evt.TopicName)

	if !b.registry.HasTopic(evt.TopicName) {
		b.logger.Warnf("[%s] Topic %s not found, cannot delete", evt.CID, evt.TopicName)
		return
	}

	subs := b.registry.SubscriptionsForTopic(evt.TopicName)
	for _, sub := range subs {
		if _, err := b.UnregisterSubscription(ctx, evt.CID, evt.TopicName, sub.Username); err != nil {
			b.logger.Errorf("[%s] Failed to unsubscribe %s from %s: %v", evt.CID, sub.Username, evt.TopicName, err)
		}
	}

	b.registry.DeleteTopic(evt.TopicName)
	b.matcher.DeleteTopicAll(evt.TopicName)

	b.logger.Infof("[%s] Successfully deleted topic %s", evt.CID, evt.TopicName)
}

// OnSubscriptionCreate registers a subscription for each topic in the
// event. Bindings already exist on the broker side, so none are created.
func (b *Backend) OnSubscriptionCreate(ctx context.Context, evt SubscriptionCreateEvent) {
	for _, topicName := range evt.TopicNameList {
		req := RegisterSubscriptionRequest{
			CID:       evt.CID,
			TopicName: topicName,
			Username:  evt.Username,
			SecName:   evt.SecName,
			SubKey:    evt.SubKey,
		}
		if _, err := b.RegisterSubscription(ctx, req); err != nil {
			b.logger.Errorf("[%s] Failed to register subscription on %s: %v", evt.CID, topicName, err)
		}
	}
	b.logger.Infof("[%s] Subscribed %s to %d topics with key %s",
		evt.CID, evt.SecName, len(evt.TopicNameList), evt.SubKey)
}

// OnSubscriptionDelete removes the principal's subscriptions carrying the
// event's sub_key across all topics.
func (b *Backend) OnSubscriptionDelete(ctx context.Context, evt SubscriptionDeleteEvent) {
	b.logger.Infof("[%s] Processing delete for sub_key=%s, sec_name=%s", evt.CID, evt.SubKey, evt.SecName)

	topicNames := b.registry.TopicsForSubKey(evt.Username, evt.SubKey)
	if len(topicNames) == 0 {
		b.logger.Infof("[%s] No subscriptions found for %s with key %s", evt.CID, evt.SecName, evt.SubKey)
		return
	}

	for _, topicName := range topicNames {
		if _, err := b.UnregisterSubscription(ctx, evt.CID, topicName, evt.Username); err != nil {
			b.logger.Errorf("[%s] Failed to unsubscribe %s from %s: %v", evt.CID, evt.Username, topicName, err)
		}
	}
}
