package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/cardsync/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Card returns a stable digest of a flashcard's question and answer.
func Card(c models.Flashcard) string {
	return Sum([]byte(c.Key()))
}
