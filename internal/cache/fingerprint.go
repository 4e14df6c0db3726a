// Package cache derives stable fingerprints for chat requests and stores
// upstream responses in Redis under them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Message is the role/content pair that participates in the fingerprint.
// Sampling parameters and any other request fields are deliberately absent.
type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// DefaultUserLevel scopes cache entries that carry no explicit level.
const DefaultUserLevel = "default"

// Fingerprint derives the cache key for an ordered message sequence. The
// messages are serialized canonically (fixed field order, no indentation),
// scoped by the user level, optionally joined by the model identifier, and
// hashed with SHA-256. The first 32 hex characters form the key.
//
// Identical sequences always produce identical keys; requests differing
// only in sampling parameters collapse to the same key. An empty sequence
// hashes the canonical empty array and is a valid key, not an error.
func Fingerprint(messages []Message, userLevel, model string) string {
	if messages == nil {
		messages = []Message{}
	}
	if userLevel == "" {
		userLevel = DefaultUserLevel
	}

	// Marshal of a []Message is canonical: struct field order is fixed and
	// encoding/json emits no insignificant whitespace.
	canonical, err := json.Marshal(messages)
	if err != nil {
		// A []Message cannot fail to marshal; keep the key stable anyway.
		canonical = []byte("[]")
	}

	combined := append(canonical, []byte("|level:"+userLevel)...)
	if model != "" {
		combined = append(combined, []byte("|model:"+model)...)
	}

	sum := sha256.Sum256(combined)
	return hex.EncodeToString(sum[:])[:32]
}
