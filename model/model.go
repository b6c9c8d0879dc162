// Package model contains the domain records of the topicbus pub/sub core:
// topics, subscriptions, permissions, published messages and their
// per-subscriber queue entries.
package model

const tablePrefix = "topicbus_"

// Reserved identifier prefixes. Generated message IDs and subscription keys
// carry these prefixes, which is why client-supplied permission patterns may
// never contain them (see Permission.Validate).
const (
	// MsgIDPrefix starts every generated message ID.
	MsgIDPrefix = "zpsm"

	// SubKeyPrefix starts every generated subscription key.
	SubKeyPrefix = "zpsk.rest"
)

// Message priority bounds.
const (
	PriorityMin     = 1
	PriorityDefault = 5
	PriorityMax     = 9
)
