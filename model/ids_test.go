package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMsgID(t *testing.T) {
	id := NewMsgID()
	assert.True(t, strings.HasPrefix(id, MsgIDPrefix))
	assert.Len(t, id, len(MsgIDPrefix)+32)

	assert.NotEqual(t, id, NewMsgID())
}

func TestNewSubKey(t *testing.T) {
	key := NewSubKey("sec-alice")
	assert.True(t, strings.HasPrefix(key, SubKeyPrefix+".sec-alice."))

	assert.NotEqual(t, key, NewSubKey("sec-alice"))
}
