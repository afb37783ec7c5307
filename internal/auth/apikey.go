package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// APIKeys holds the configured keys by their SHA-256 hash; plaintext keys are not retained.
type APIKeys struct {
	hashes []string
}

func NewAPIKeys(keys []string) *APIKeys {
	ak := &APIKeys{}
	for _, k := range keys {
		if k != "" {
			ak.hashes = append(ak.hashes, HashAPIKey(k))
		}
	}
	return ak
}

func (a *APIKeys) Len() int { return len(a.hashes) }

// Lookup returns the principal id for key. Every stored hash is compared so timing
// does not reveal which key matched.
func (a *APIKeys) Lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	hash := HashAPIKey(key)
	matched := ""
	for _, h := range a.hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(hash)) == 1 {
			matched = h
		}
	}
	if matched == "" {
		return "", false
	}
	return "key:" + matched[:12], true
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
