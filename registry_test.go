package topicbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/topicbus/model"
)

func TestTopicRegistry_AddAndGetTopic(t *testing.T) {
	r := NewTopicRegistry()
	topic := model.NewTopic("orders.created")
	r.AddTopic(topic.Name, &topic)

	assert.True(t, r.HasTopic("orders.created"))
	assert.Equal(t, 1, r.TopicCount())

	got, ok := r.GetTopic("orders.created")
	require.True(t, ok)
	assert.Same(t, &topic, got)

	_, ok = r.GetTopic("missing")
	assert.False(t, ok)
}

func TestTopicRegistry_Subscriptions(t *testing.T) {
	r := NewTopicRegistry()
	topic := model.NewTopic("orders.created")
	r.AddTopic(topic.Name, &topic)

	sub := model.NewSubscription("orders.created", "sec-alice", "alice", "zpsk.rest.sec-alice.abc")
	r.AddSubscription(sub)

	subs := r.SubscriptionsForTopic("orders.created")
	require.Len(t, subs, 1)
	assert.Same(t, sub, subs[0])

	key, ok := r.FindSubKey("alice", "orders.created")
	require.True(t, ok)
	assert.Equal(t, sub.SubKey, key)

	_, ok = r.FindSubKey("bob", "orders.created")
	assert.False(t, ok)

	topicName, key, ok := r.FindSubKeyAnyTopic("alice")
	require.True(t, ok)
	assert.Equal(t, "orders.created", topicName)
	assert.Equal(t, sub.SubKey, key)
}

func TestTopicRegistry_AddSubscriptionReplacesSamePrincipal(t *testing.T) {
	r := NewTopicRegistry()
	first := model.NewSubscription("orders.created", "sec-alice", "alice", "key-1")
	second := model.NewSubscription("orders.created", "sec-alice", "alice", "key-2")

	r.AddSubscription(first)
	r.AddSubscription(second)

	subs := r.SubscriptionsForTopic("orders.created")
	require.Len(t, subs, 1)
	assert.Equal(t, "key-2", subs[0].SubKey)
}

func TestTopicRegistry_RemoveSubscription(t *testing.T) {
	r := NewTopicRegistry()
	sub := model.NewSubscription("orders.created", "sec-alice", "alice", "key-1")
	r.AddSubscription(sub)

	removed, ok := r.RemoveSubscription("orders.created", "alice")
	require.True(t, ok)
	assert.Same(t, sub, removed)

	// The topic's empty subscription index is dropped.
	assert.Empty(t, r.SubscriptionsForTopic("orders.created"))

	_, ok = r.RemoveSubscription("orders.created", "alice")
	assert.False(t, ok)
}

func TestTopicRegistry_DeleteTopic(t *testing.T) {
	r := NewTopicRegistry()
	topic := model.NewTopic("orders.created")
	r.AddTopic(topic.Name, &topic)
	r.AddSubscription(model.NewSubscription("orders.created", "sec-alice", "alice", "key-1"))
	r.AddSubscription(model.NewSubscription("orders.created", "sec-bob", "bob", "key-2"))

	removed, ok := r.DeleteTopic("orders.created")
	require.True(t, ok)
	assert.Len(t, removed, 2)
	assert.False(t, r.HasTopic("orders.created"))
	assert.Empty(t, r.SubscriptionsForTopic("orders.created"))

	_, ok = r.DeleteTopic("orders.created")
	assert.False(t, ok)
}

func TestTopicRegistry_RenameMovesTopicAndSubscriptions(t *testing.T) {
	r := NewTopicRegistry()
	topic := model.NewTopic("orders.created")
	r.AddTopic(topic.Name, &topic)

	sub := model.NewSubscription("orders.created", "sec-alice", "alice", "key-1")
	r.AddSubscription(sub)

	renamed, ok := r.Rename("orders.created", "orders.opened")
	require.True(t, ok)
	require.Len(t, renamed, 1)

	// The shared subscription object is updated in place.
	assert.Equal(t, "orders.opened", sub.TopicName)
	assert.Equal(t, "orders.opened", topic.Name)

	assert.False(t, r.HasTopic("orders.created"))
	assert.True(t, r.HasTopic("orders.opened"))
	assert.Empty(t, r.SubscriptionsForTopic("orders.created"))
	require.Len(t, r.SubscriptionsForTopic("orders.opened"), 1)

	key, ok := r.FindSubKey("alice", "orders.opened")
	require.True(t, ok)
	assert.Equal(t, "key-1", key)
}

func TestTopicRegistry_RenameWithoutSubscriptions(t *testing.T) {
	r := NewTopicRegistry()
	topic := model.NewTopic("orders.created")
	r.AddTopic(topic.Name, &topic)

	renamed, ok := r.Rename("orders.created", "orders.opened")
	require.True(t, ok)
	assert.Empty(t, renamed)
	assert.True(t, r.HasTopic("orders.opened"))
}

func TestTopicRegistry_RenameMissingTopicIsNoOp(t *testing.T) {
	r := NewTopicRegistry()

	renamed, ok := r.Rename("missing", "whatever")
	assert.False(t, ok)
	assert.Nil(t, renamed)
	assert.Equal(t, 0, r.TopicCount())
}

func TestTopicRegistry_TopicsForSubKey(t *testing.T) {
	r := NewTopicRegistry()
	r.AddSubscription(model.NewSubscription("orders.created", "sec-alice", "alice", "key-1"))
	r.AddSubscription(model.NewSubscription("orders.deleted", "sec-alice", "alice", "key-1"))
	r.AddSubscription(model.NewSubscription("invoices.paid", "sec-alice", "alice", "key-other"))

	names := r.TopicsForSubKey("alice", "key-1")
	assert.ElementsMatch(t, []string{"orders.created", "orders.deleted"}, names)
}
