package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewMsgID generates a unique message ID carrying the reserved prefix.
func NewMsgID() string {
	return MsgIDPrefix + randomHex()
}

// NewSubKey generates a unique subscription key for a security definition.
// The key doubles as the physical queue name in the transport layer.
func NewSubKey(secName string) string {
	return fmt.Sprintf("%s.%s.%s", SubKeyPrefix, secName, randomHex())
}

func randomHex() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
