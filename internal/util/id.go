package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-character hex identifier, used for request correlation.
func NewID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
