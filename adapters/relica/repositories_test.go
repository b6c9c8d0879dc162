package relica

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/topicbus"
	"github.com/coregx/topicbus/model"
)

func TestMessageRepository_SaveAndLoad(t *testing.T) {
	stores, _ := testStores(t)
	ctx := context.Background()

	msg := model.NewMessage(testClusterID, 10, "orders.created", "payload", "alice", 7, 3600)
	msg.CorrelID = "corr-1"

	saved, err := stores.Message.Save(ctx, &msg)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	loaded, err := stores.Message.Load(ctx, testClusterID, msg.PubMsgID)
	require.NoError(t, err)
	assert.Equal(t, msg.PubMsgID, loaded.PubMsgID)
	assert.Equal(t, "payload", loaded.Data)
	assert.Equal(t, 7, loaded.Priority)
	assert.Equal(t, "corr-1", loaded.CorrelID)
}

func TestMessageRepository_LoadMissingReturnsNoData(t *testing.T) {
	stores, _ := testStores(t)

	_, err := stores.Message.Load(context.Background(), testClusterID, "zpsm-missing")
	assert.True(t, topicbus.IsNoData(err))
}

func TestMessageRepository_DeleteExpiredUnreferenced(t *testing.T) {
	stores, _ := testStores(t)
	ctx := context.Background()

	referenced := saveMessage(t, stores, 10, "referenced", -60)
	_, err := stores.Queue.EnqueueForSubKeys(ctx, testClusterID, 10, referenced.PubMsgID, []string{"key-1"})
	require.NoError(t, err)

	unreferenced := saveMessage(t, stores, 10, "unreferenced", -60)
	live := saveMessage(t, stores, 10, "live", 3600)

	removed, err := stores.Message.DeleteExpiredUnreferenced(ctx, testClusterID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = stores.Message.Load(ctx, testClusterID, unreferenced.PubMsgID)
	assert.True(t, topicbus.IsNoData(err))

	// Still referenced by a queue row, so retained despite being expired.
	_, err = stores.Message.Load(ctx, testClusterID, referenced.PubMsgID)
	assert.NoError(t, err)

	_, err = stores.Message.Load(ctx, testClusterID, live.PubMsgID)
	assert.NoError(t, err)
}

func TestTopicRepository_SaveAndGetByName(t *testing.T) {
	stores, _ := testStores(t)
	ctx := context.Background()

	topic := model.NewTopic("orders.created")
	saved, err := stores.Topic.Save(ctx, &topic)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	loaded, err := stores.Topic.GetByName(ctx, "orders.created")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, loaded.ID)
	assert.Equal(t, "orders.created", loaded.Name)

	_, err = stores.Topic.GetByName(ctx, "missing")
	assert.True(t, topicbus.IsNoData(err))
}

func TestTopicRepository_Rename(t *testing.T) {
	stores, _ := testStores(t)
	ctx := context.Background()

	topic := model.NewTopic("orders.created")
	saved, err := stores.Topic.Save(ctx, &topic)
	require.NoError(t, err)

	require.NoError(t, stores.Topic.Rename(ctx, "orders.created", "orders.opened"))

	loaded, err := stores.Topic.GetByName(ctx, "orders.opened")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, loaded.ID)

	_, err = stores.Topic.GetByName(ctx, "orders.created")
	assert.True(t, topicbus.IsNoData(err))

	// Renaming an unknown topic is not an error.
	assert.NoError(t, stores.Topic.Rename(ctx, "missing", "whatever"))
}
