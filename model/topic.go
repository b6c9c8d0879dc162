package model

import "time"

// Topic represents a message category/channel in the pub/sub system.
//
// Topic names are hierarchical, with segments separated by dots
// (e.g. "orders.created", "orders.payment.completed"). Permission patterns
// match against these segments.
//
// The in-memory registry owns Topic objects; the durable row (TableName)
// exists so that queue entries can reference a stable numeric topic ID.
type Topic struct {
	ID           int64     `json:"id" db:"id"`                      // Durable topic ID, 0 until saved
	Name         string    `json:"name" db:"name"`                  // Unique dotted topic name
	CreationTime time.Time `json:"creationTime" db:"creation_time"` // Topic creation time
}

// TableName returns the database table name for Topic.
func (t Topic) TableName() string {
	return tablePrefix + "topic"
}

// NewTopic creates a new topic with the given name.
func NewTopic(name string) Topic {
	return Topic{
		ID:           0,
		Name:         name,
		CreationTime: time.Now().UTC(),
	}
}
