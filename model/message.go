package model

import "time"

// Message represents a published message. Messages are immutable once
// published except for bookkeeping flags; they are retained until no
// subscriber queue references them and their expiration time has passed.
type Message struct {
	ID             int64     `json:"id" db:"id"`
	PubMsgID       string    `json:"pubMsgID" db:"pub_msg_id"`   // Unique message ID (MsgIDPrefix + hex)
	ClusterID      int64     `json:"clusterID" db:"cluster_id"`  // Owning cluster
	TopicID        int64     `json:"topicID" db:"topic_id"`      // Topic this message was published to
	TopicName      string    `json:"topicName" db:"topic_name"`  // Denormalized topic name at publish time
	Data           string    `json:"data"`                       // Message payload
	Priority       int       `json:"priority"`                   // PriorityMin..PriorityMax
	Size           int       `json:"size"`                       // Payload size in bytes
	Publisher      string    `json:"publisher"`                  // Publishing principal
	CorrelID       string    `json:"correlID" db:"correl_id"`    // Optional correlation ID
	InReplyTo      string    `json:"inReplyTo" db:"in_reply_to"` // Optional message this replies to
	ExtClientID    string    `json:"extClientID" db:"ext_client_id"`
	ExtPubTime     time.Time `json:"extPubTime" db:"ext_pub_time"`           // Publish time
	ExpirationTime time.Time `json:"expirationTime" db:"expiration_time"`    // Absolute expiry
	IsInSubQueue   bool      `json:"isInSubQueue" db:"is_in_sub_queue"`      // Set once any queue entry references it
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// NewMessage creates a message for publication. Expiration is given in
// seconds relative to now; priority falls back to PriorityDefault when out
// of range.
func NewMessage(clusterID, topicID int64, topicName, data, publisher string, priority, expirationSeconds int) Message {
	if priority < PriorityMin || priority > PriorityMax {
		priority = PriorityDefault
	}
	now := time.Now().UTC()
	return Message{
		PubMsgID:       NewMsgID(),
		ClusterID:      clusterID,
		TopicID:        topicID,
		TopicName:      topicName,
		Data:           data,
		Priority:       priority,
		Size:           len(data),
		Publisher:      publisher,
		ExtPubTime:     now,
		ExpirationTime: now.Add(time.Duration(expirationSeconds) * time.Second),
	}
}

// IsExpired reports whether the message has expired relative to now.
func (m Message) IsExpired(now time.Time) bool {
	return m.ExpirationTime.Before(now)
}
