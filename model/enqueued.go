package model

import (
	"database/sql"
	"time"
)

// DeliveryStatus is the lifecycle state of an EnqueuedMessage.
//
// Transitions:
//
//	INITIALIZED → WAITING_FOR_CONFIRMATION   (leased for delivery)
//	WAITING_FOR_CONFIRMATION → DELIVERED     (acknowledged, terminal)
//	WAITING_FOR_CONFIRMATION → INITIALIZED   (redelivery timeout elapsed)
//	any → TO_DELETE                          (explicit discard/expiry, terminal)
type DeliveryStatus int

const (
	// StatusDelivered marks a confirmed delivery. Terminal.
	StatusDelivered DeliveryStatus = 1

	// StatusInitialized marks a message eligible for leasing.
	StatusInitialized DeliveryStatus = 2

	// StatusToDelete marks a message for the reaper. Terminal.
	StatusToDelete DeliveryStatus = 3

	// StatusWaitingForConfirmation marks a leased, unacknowledged message.
	StatusWaitingForConfirmation DeliveryStatus = 4
)

// EnqueuedMessage is one message in one subscriber's queue. Fan-out creates
// one row per (message, sub_key) pair; the leasing and acknowledgement
// operations drive DeliveryStatus through its state machine.
//
// A row is visible to consumption only while DeliveryStatus is
// StatusInitialized and the referenced Message has not expired.
type EnqueuedMessage struct {
	ID             int64          `json:"id"`
	PubMsgID       string         `json:"pubMsgID" db:"pub_msg_id"`  // Referenced Message
	ClusterID      int64          `json:"clusterID" db:"cluster_id"` // Owning cluster
	TopicID        int64          `json:"topicID" db:"topic_id"`
	SubKey         string         `json:"subKey" db:"sub_key"` // Owning subscription queue
	CreationTime   time.Time      `json:"creationTime" db:"creation_time"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus" db:"delivery_status"`
	DeliveryTime   sql.NullTime   `json:"deliveryTime" db:"delivery_time"` // Last lease time
	DeliveryCount  int            `json:"deliveryCount" db:"delivery_count"`
	IsInStaging    bool           `json:"isInStaging" db:"is_in_staging"` // Staged rows are never counted as deliverable
}

// TableName returns the database table name for EnqueuedMessage.
func (m EnqueuedMessage) TableName() string {
	return tablePrefix + "queue"
}

// NewEnqueuedMessage creates a queue entry in the initial state.
func NewEnqueuedMessage(clusterID, topicID int64, pubMsgID, subKey string) EnqueuedMessage {
	return EnqueuedMessage{
		PubMsgID:       pubMsgID,
		ClusterID:      clusterID,
		TopicID:        topicID,
		SubKey:         subKey,
		CreationTime:   time.Now().UTC(),
		DeliveryStatus: StatusInitialized,
		DeliveryCount:  0,
		IsInStaging:    false,
	}
}

// MarkLeased transitions the entry to WAITING_FOR_CONFIRMATION, stamping
// the delivery time and incrementing the delivery count.
func (m *EnqueuedMessage) MarkLeased(now time.Time) {
	m.DeliveryStatus = StatusWaitingForConfirmation
	m.DeliveryTime = sql.NullTime{Time: now, Valid: true}
	m.DeliveryCount++
}

// MarkDelivered transitions the entry to its terminal DELIVERED state.
func (m *EnqueuedMessage) MarkDelivered() {
	m.DeliveryStatus = StatusDelivered
}

// MarkToDelete flags the entry for reaping, distinct from a successful
// delivery.
func (m *EnqueuedMessage) MarkToDelete() {
	m.DeliveryStatus = StatusToDelete
}

// ResetForRedelivery reverts an unacknowledged lease to INITIALIZED so the
// entry becomes eligible for a fresh lease. DeliveryCount is kept, so it
// reflects every attempt.
func (m *EnqueuedMessage) ResetForRedelivery() {
	m.DeliveryStatus = StatusInitialized
}

// IsDeliverable reports whether the entry can be leased right now.
func (m *EnqueuedMessage) IsDeliverable() bool {
	return m.DeliveryStatus == StatusInitialized && !m.IsInStaging
}
