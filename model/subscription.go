package model

import "time"

// Subscription connects one security principal to one topic.
//
// The registry keeps at most one active Subscription per (topic, principal)
// pair. SubKey is globally unique; it identifies the subscriber's queue in
// the durable store and names the physical queue in the transport layer.
//
// Subscription objects are shared by reference between the per-topic and
// per-principal indexes, so a topic rename that updates TopicName in place
// is observed by every holder of the object.
type Subscription struct {
	TopicName    string    `json:"topicName"`    // Topic this subscription belongs to, updated on rename
	SubKey       string    `json:"subKey"`       // Globally unique queue identifier
	SecName      string    `json:"secName"`      // Owning security definition
	Username     string    `json:"username"`     // Owning principal
	CreationTime time.Time `json:"creationTime"` // Subscription creation time
}

// NewSubscription creates a subscription for a principal on a topic.
func NewSubscription(topicName, secName, username, subKey string) *Subscription {
	return &Subscription{
		TopicName:    topicName,
		SubKey:       subKey,
		SecName:      secName,
		Username:     username,
		CreationTime: time.Now().UTC(),
	}
}
