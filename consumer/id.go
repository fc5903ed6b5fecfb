package consumer

import (
	"crypto/rand"
	"encoding/hex"
)

// randomConsumerID generates a short identifier used to name router handlers.
func randomConsumerID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "ingestor-unknown"
	}
	return "ingestor-" + hex.EncodeToString(buf[:])
}
