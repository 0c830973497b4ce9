// Package auth guards the MCP endpoint with a pre-shared API key. Only
// a bcrypt hash of the key is configured on the server.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix distinguishes chatsync keys from other bearer tokens.
	APIKeyPrefix = "cs_"

	// apiKeyBytes is the number of random bytes in a generated key.
	apiKeyBytes = 32
)

// GenerateAPIKey returns a new random key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	return APIKeyPrefix + hex.EncodeToString(b), nil
}

// HashAPIKey returns the bcrypt hash to configure for key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Keys validates presented keys against configured bcrypt hashes.
// Accepted keys are remembered by SHA-256 digest so repeat requests skip
// the bcrypt comparison.
type Keys struct {
	hashes [][]byte

	mu       sync.RWMutex
	accepted map[string]struct{}
}

// NewKeys parses a comma-separated list of bcrypt hashes.
func NewKeys(hashList string) (*Keys, error) {
	k := &Keys{accepted: make(map[string]struct{})}

	for _, h := range strings.Split(hashList, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}

		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("entry %d is not a bcrypt hash: %w", len(k.hashes)+1, err)
		}

		k.hashes = append(k.hashes, []byte(h))
	}

	if len(k.hashes) == 0 {
		return nil, fmt.Errorf("no API key hashes configured")
	}

	return k, nil
}

// Validate reports whether key matches a configured hash.
func (k *Keys) Validate(key string) bool {
	if key == "" {
		return false
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])

	k.mu.RLock()
	_, ok := k.accepted[digest]
	k.mu.RUnlock()

	if ok {
		return true
	}

	for _, h := range k.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			k.mu.Lock()
			k.accepted[digest] = struct{}{}
			k.mu.Unlock()

			return true
		}
	}

	return false
}
