package security

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomTokenBytes is the amount of entropy in tokens produced by GenerateRandomToken.
const RandomTokenBytes = 32

// GenerateRandomToken returns a hex-encoded string of RandomTokenBytes random bytes.
func GenerateRandomToken() (string, error) {
	bytes := make([]byte, RandomTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
