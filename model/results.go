package model

import "time"

// StatusResponse is the plain success/failure result returned by lifecycle
// operations. Expected "not found" conditions surface here as IsOK=false,
// never as errors.
type StatusResponse struct {
	IsOK    bool   `json:"isOK"`
	CID     string `json:"cid"`               // Correlation ID of the request
	Details string `json:"details,omitempty"` // Optional human-readable context
}

// PubResponse is the result of a publish operation.
type PubResponse struct {
	IsOK   bool   `json:"isOK"`
	CID    string `json:"cid"`
	MsgID  string `json:"msgID,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// EvaluationResult is the outcome of a permission check. Evaluation never
// fails with an error; a denied or unknown client yields IsOK=false and a
// Reason.
type EvaluationResult struct {
	IsOK           bool   `json:"isOK"`
	ClientID       string `json:"clientID"`
	Topic          string `json:"topic"`
	Operation      string `json:"operation"`
	MatchedPattern string `json:"matchedPattern,omitempty"` // Pattern that justified the grant
	Reason         string `json:"reason,omitempty"`         // Why the check failed
}

// QueueMessage is the row snapshot returned by a lease call: the state of a
// queue entry and its message as of the moment the lease was taken, before
// the status flip. It is a plain record suitable for JSON serialization by
// a transport layer.
type QueueMessage struct {
	MsgID          string    `json:"msgID"`
	SubKey         string    `json:"subKey"`
	TopicID        int64     `json:"topicID"`
	TopicName      string    `json:"topicName"`
	Data           string    `json:"data"`
	Priority       int       `json:"priority"`
	Size           int       `json:"size"`
	Publisher      string    `json:"publisher"`
	CorrelID       string    `json:"correlID,omitempty"`
	InReplyTo      string    `json:"inReplyTo,omitempty"`
	ExtClientID    string    `json:"extClientID,omitempty"`
	PubTime        time.Time `json:"pubTime"`
	ExpirationTime time.Time `json:"expirationTime"`
	DeliveryCount  int       `json:"deliveryCount"` // Count before this lease
}
