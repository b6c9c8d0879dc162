package topicbus

import (
	"context"
	"time"

	"github.com/coregx/topicbus/model"
)

// QueueStore is the durable per-subscription message queue.
//
// Implementations must be safe for concurrent use across processes: the
// lease path relies on storage-level row locking (SELECT ... FOR UPDATE
// semantics), never on in-process locking alone, because multiple server
// workers share the store.
type QueueStore interface {
	// GetMessages leases up to batchSize deliverable messages for subKey:
	// rows that are INITIALIZED, not in staging and whose message has not
	// expired. Within one transaction it locks the selected rows, flips
	// them to WAITING_FOR_CONFIRMATION, stamps delivery_time=now and
	// increments delivery_count, then commits. Results are ordered most
	// recent publish first and reflect the rows before the status flip.
	//
	// Two concurrent calls for the same subKey never lease the same row:
	// the second caller blocks on the row locks until the first commits
	// and then sees the rows as no longer INITIALIZED.
	GetMessages(ctx context.Context, clusterID int64, subKey string, batchSize int, now time.Time) ([]model.QueueMessage, error)

	// AcknowledgeDelivery transitions the listed messages to DELIVERED.
	AcknowledgeDelivery(ctx context.Context, clusterID int64, subKey string, msgIDs []string, now time.Time) error

	// SetToDelete transitions the listed messages to TO_DELETE, an explicit
	// discard distinct from successful delivery.
	SetToDelete(ctx context.Context, clusterID int64, subKey string, msgIDs []string, now time.Time) error

	// GetQueueDepthBySubKey counts deliverable messages for one sub_key:
	// INITIALIZED, not in staging, not expired.
	GetQueueDepthBySubKey(ctx context.Context, clusterID int64, subKey string, now time.Time) (int, error)

	// GetQueueDepthByTopicIDList counts deliverable messages per topic ID.
	GetQueueDepthByTopicIDList(ctx context.Context, clusterID int64, topicIDs []int64, now time.Time) (map[int64]int, error)

	// EnqueueForSubKeys inserts one INITIALIZED queue row per sub_key for a
	// just-published message and flags the message as present in at least
	// one subscriber queue. Returns the number of rows inserted.
	EnqueueForSubKeys(ctx context.Context, clusterID, topicID int64, pubMsgID string, subKeys []string) (int, error)

	// MoveMessagesToSubQueue fans eligible messages of a topic out into the
	// queue of subKey: messages published no later than pubTimeMax, not yet
	// expired and with no existing queue row for this exact subKey. The
	// per-message is_in_sub_queue flag is set false->true only for messages
	// just inserted. Callers must hold a topic-scoped lock for the duration
	// of the call. Returns the number of rows inserted.
	MoveMessagesToSubQueue(ctx context.Context, clusterID, topicID int64, subKey string, pubTimeMax time.Time) (int, error)

	// RequeueExpiredLeases reverts WAITING_FOR_CONFIRMATION rows whose
	// delivery_time is older than cutoff back to INITIALIZED, making them
	// eligible for a fresh lease. Returns the number of rows reverted.
	RequeueExpiredLeases(ctx context.Context, clusterID int64, cutoff time.Time) (int, error)

	// DiscardExhaustedLeases flags WAITING_FOR_CONFIRMATION rows whose
	// delivery_time is older than cutoff and whose delivery_count has
	// reached maxDeliveryCount as TO_DELETE, so the reaper never requeues
	// them again. Returns the number of rows flagged.
	DiscardExhaustedLeases(ctx context.Context, clusterID int64, maxDeliveryCount int, cutoff time.Time) (int, error)

	// DeleteQueueForSubKey removes every queue row of a subscription.
	// Used when the subscription is destroyed.
	DeleteQueueForSubKey(ctx context.Context, clusterID int64, subKey string) (int, error)

	// DeleteExpired removes queue rows flagged TO_DELETE and rows whose
	// message expired before now. Returns the number of rows removed.
	DeleteExpired(ctx context.Context, clusterID int64, now time.Time) (int, error)
}

// MessageRepository is the persistence interface for published messages.
// Messages are immutable once created except for bookkeeping flags.
type MessageRepository interface {
	// Save inserts a new message (ID=0) or updates an existing one.
	Save(ctx context.Context, m *model.Message) (*model.Message, error)

	// Load retrieves a message by its pub_msg_id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, clusterID int64, pubMsgID string) (model.Message, error)

	// DeleteExpiredUnreferenced removes messages that expired before now
	// and are referenced by no queue row. Returns the number removed.
	DeleteExpiredUnreferenced(ctx context.Context, clusterID int64, now time.Time) (int, error)
}

// TopicRepository is the persistence interface for topic rows. The
// in-memory registry is authoritative for request serving; the durable row
// supplies the numeric topic ID referenced by messages and queue entries.
type TopicRepository interface {
	// Save inserts a new topic (ID=0) or updates an existing one.
	Save(ctx context.Context, m *model.Topic) (*model.Topic, error)

	// GetByName retrieves a topic by name.
	// Returns ErrNoData if not found.
	GetByName(ctx context.Context, name string) (model.Topic, error)

	// Rename updates a topic row's name.
	Rename(ctx context.Context, oldName, newName string) error
}
