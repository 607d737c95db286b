package webhost

import (
	"crypto/rand"
	"fmt"
)

// MaxRandomValuesBytes is the per-call limit of crypto.getRandomValues.
const MaxRandomValuesBytes = 65536

// GetRandomValues fills buf with cryptographically strong random bytes.
func GetRandomValues(buf []byte) error {
	if len(buf) > MaxRandomValuesBytes {
		return domError("QuotaExceededError", fmt.Sprintf(
			"The ArrayBufferView's byte length (%d) exceeds the number of bytes of entropy available via this API (%d).",
			len(buf), MaxRandomValuesBytes))
	}
	if _, err := rand.Read(buf); err != nil {
		return domError("OperationError", err.Error())
	}
	return nil
}
