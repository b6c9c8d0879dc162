package topicbus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/topicbus/model"
)

func perm(pattern string, access model.AccessType) model.Permission {
	return model.NewPermission(1, pattern, access)
}

func TestPatternMatcher_ExactMatch(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.created", model.AccessPublisherSubscriber),
	}))

	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.IsOK)
	assert.Equal(t, "orders.created", result.MatchedPattern)

	result = m.Evaluate("alice", "orders.created", OperationSubscribe)
	assert.True(t, result.IsOK)

	result = m.Evaluate("alice", "orders.deleted", OperationPublish)
	assert.False(t, result.IsOK)
	assert.Equal(t, "No matching pattern found", result.Reason)
}

func TestPatternMatcher_CaseInsensitive(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("Orders.Created", model.AccessPublisher),
	}))

	assert.True(t, m.Evaluate("alice", "ORDERS.CREATED", OperationPublish).IsOK)
	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
}

func TestPatternMatcher_SingleSegmentWildcard(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.*", model.AccessPublisher),
	}))

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
	assert.True(t, m.Evaluate("alice", "orders.", OperationPublish).IsOK)

	// "*" never crosses a dot.
	assert.False(t, m.Evaluate("alice", "orders.created.eu", OperationPublish).IsOK)
	assert.False(t, m.Evaluate("alice", "orders", OperationPublish).IsOK)
}

func TestPatternMatcher_MultiSegmentWildcard(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
	}))

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
	assert.True(t, m.Evaluate("alice", "orders.created.eu.west", OperationPublish).IsOK)
	assert.False(t, m.Evaluate("alice", "invoices.created", OperationPublish).IsOK)
}

func TestPatternMatcher_TopicMetacharactersAreLiteral(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.*", model.AccessPublisher),
	}))

	// A dot in the pattern matches only a literal dot.
	assert.False(t, m.Evaluate("alice", "ordersXcreated", OperationPublish).IsOK)
}

func TestPatternMatcher_AccessTypeScoping(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
		perm("invoices.**", model.AccessSubscriber),
	}))

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
	assert.False(t, m.Evaluate("alice", "orders.created", OperationSubscribe).IsOK)

	assert.True(t, m.Evaluate("alice", "invoices.paid", OperationSubscribe).IsOK)
	assert.False(t, m.Evaluate("alice", "invoices.paid", OperationPublish).IsOK)
}

func TestPatternMatcher_OverlappingGrantsCombinePerOperation(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("admin.*", model.AccessSubscriber),
		perm("admin.delete", model.AccessPublisher),
	}))

	// The overlapping topic is covered by both grants, one per operation.
	pub := m.Evaluate("alice", "admin.delete", OperationPublish)
	assert.True(t, pub.IsOK)
	assert.Equal(t, "admin.delete", pub.MatchedPattern)

	sub := m.Evaluate("alice", "admin.delete", OperationSubscribe)
	assert.True(t, sub.IsOK)
	assert.Equal(t, "admin.*", sub.MatchedPattern)

	// Siblings only carry the wildcard's operation.
	assert.True(t, m.Evaluate("alice", "admin.create", OperationSubscribe).IsOK)
	assert.False(t, m.Evaluate("alice", "admin.create", OperationPublish).IsOK)
}

func TestPatternMatcher_OperationPrefixNarrowsGrant(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("pub=orders.**", model.AccessPublisherSubscriber),
		perm("sub=invoices.**", model.AccessPublisherSubscriber),
	}))

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
	assert.False(t, m.Evaluate("alice", "orders.created", OperationSubscribe).IsOK)

	assert.True(t, m.Evaluate("alice", "invoices.paid", OperationSubscribe).IsOK)
	assert.False(t, m.Evaluate("alice", "invoices.paid", OperationPublish).IsOK)
}

func TestPatternMatcher_ExactPreferredOverWildcard(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
		perm("orders.created", model.AccessPublisher),
	}))

	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.IsOK)
	assert.Equal(t, "orders.created", result.MatchedPattern)
}

func TestPatternMatcher_MoreSpecificWildcardPreferred(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("**", model.AccessPublisher),
		perm("orders.*", model.AccessPublisher),
	}))

	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.IsOK)
	assert.Equal(t, "orders.*", result.MatchedPattern)
}

func TestPatternMatcher_BoundedWildcardOutranksUnbounded(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
		perm("orders.*", model.AccessPublisher),
	}))

	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.IsOK)
	assert.Equal(t, "orders.*", result.MatchedPattern)

	// Only the multi-segment pattern reaches deeper topics.
	deep := m.Evaluate("alice", "orders.created.eu", OperationPublish)
	assert.True(t, deep.IsOK)
	assert.Equal(t, "orders.**", deep.MatchedPattern)
}

func TestPatternMatcher_UnknownClient(t *testing.T) {
	m := NewPatternMatcher()

	result := m.Evaluate("nobody", "orders.created", OperationPublish)
	assert.False(t, result.IsOK)
	assert.Equal(t, "Client not found", result.Reason)
}

func TestPatternMatcher_UnknownOperation(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisherSubscriber),
	}))

	result := m.Evaluate("alice", "orders.created", "delete")
	assert.False(t, result.IsOK)
	assert.Contains(t, result.Reason, "Invalid operation")
}

func TestPatternMatcher_AddClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"empty pattern", ""},
		{"reserved zato", "orders.zato.internal"},
		{"reserved zato uppercase", "orders.ZATO.internal"},
		{"reserved zpsk", "zpsk.rest.orders"},
		{"non-ASCII homograph", "оrders.created"}, // Cyrillic о
		{"zero-width space", "orders.​created"},
		{"too long", fmt.Sprintf("%0201d", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewPatternMatcher()
			err := m.AddClient("alice", []model.Permission{
				perm(tt.pattern, model.AccessPublisher),
			})
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			// Validation failure leaves no partial state.
			assert.Equal(t, 0, m.ClientCount())
		})
	}
}

func TestPatternMatcher_AddClientAllOrNothing(t *testing.T) {
	m := NewPatternMatcher()
	err := m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
		perm("bad.zato.pattern", model.AccessPublisher),
	})
	require.Error(t, err)

	// Even the valid pattern must not have been stored.
	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
}

func TestPatternMatcher_InactivePermissionsSkipped(t *testing.T) {
	m := NewPatternMatcher()
	inactive := perm("orders.**", model.AccessPublisher)
	inactive.IsActive = false
	require.NoError(t, m.AddClient("alice", []model.Permission{inactive}))

	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
}

func TestPatternMatcher_SetPermissionsReplacesWholesale(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
	}))
	require.NoError(t, m.SetPermissions("alice", []model.Permission{
		perm("invoices.**", model.AccessPublisher),
	}))

	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
	assert.True(t, m.Evaluate("alice", "invoices.paid", OperationPublish).IsOK)
}

func TestPatternMatcher_RemoveClient(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
	}))

	m.RemoveClient("alice")
	assert.Equal(t, 0, m.ClientCount())
	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)

	// Unknown client removal is a no-op.
	m.RemoveClient("nobody")
}

func TestPatternMatcher_RenameTopicExactOnly(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.created", model.AccessPublisher),
		perm("orders.**", model.AccessPublisher),
	}))

	m.RenameTopic("alice", "orders.created", "orders.opened")

	assert.True(t, m.Evaluate("alice", "orders.opened", OperationPublish).IsOK)
	// The wildcard grant still covers the old name.
	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.IsOK)
	assert.Equal(t, "orders.**", result.MatchedPattern)
}

func TestPatternMatcher_DeleteTopicExactOnly(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.created", model.AccessPublisher),
	}))
	require.NoError(t, m.AddClient("bob", []model.Permission{
		perm("orders.created", model.AccessPublisher),
	}))

	m.DeleteTopic("alice", "orders.created")
	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
	assert.True(t, m.Evaluate("bob", "orders.created", OperationPublish).IsOK)

	m.DeleteTopicAll("orders.created")
	assert.False(t, m.Evaluate("bob", "orders.created", OperationPublish).IsOK)
}

func TestPatternMatcher_PathologicalPatternIsLinear(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("**.**.**.**", model.AccessPublisher),
	}))

	topic := "a"
	for i := 0; i < 200; i++ {
		topic += ".segment"
	}

	start := time.Now()
	result := m.Evaluate("alice", topic, OperationPublish)
	elapsed := time.Since(start)

	assert.True(t, result.IsOK)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestPatternMatcher_CompiledPatternCache(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []model.Permission{
		perm("orders.**", model.AccessPublisher),
	}))
	require.NoError(t, m.AddClient("bob", []model.Permission{
		perm("orders.**", model.AccessPublisher),
	}))

	// Both clients share one cached compilation.
	assert.Equal(t, 1, m.CacheSize())

	m.ClearCache()
	assert.Equal(t, 1, m.CacheSize()) // Recompiled for registered clients
	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).IsOK)
}
