package cache

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Namespace identifies one of the three cache concerns sharing a LayeredCache.
type Namespace struct {
	cache  *LayeredCache
	prefix string
	ttl    time.Duration
}

// Schemas is the schema-cache namespace: key = sha256("schema|" + dataSourceID), truncated to 32 hex chars.
func Schemas(c *LayeredCache, ttl time.Duration) Namespace {
	return Namespace{cache: c, prefix: "schema", ttl: ttl}
}

// SchemaKey returns the deterministic key for a data source's schema.
func SchemaKey(dataSourceID string) string {
	h := sha256.Sum256([]byte("schema|" + dataSourceID))
	return hex.EncodeToString(h[:16])
}

// Queries is the query-result-cache namespace: key = sha256("q|" + dataSourceID + "|" + normalizedSQL).
func Queries(c *LayeredCache, ttl time.Duration) Namespace {
	return Namespace{cache: c, prefix: "query", ttl: ttl}
}

// QueryKey returns the deterministic key for a normalized SQL query against a data source.
func QueryKey(dataSourceID, normalizedSQL string) string {
	h := sha256.Sum256([]byte("q|" + dataSourceID + "|" + normalizedSQL))
	return hex.EncodeToString(h[:])
}

// AIResponses is the AI-response-cache namespace: key = md5(prompt + ":" + contextFingerprint + ":" + conversationID).
func AIResponses(c *LayeredCache, ttl time.Duration) Namespace {
	return Namespace{cache: c, prefix: "ai", ttl: ttl}
}

// AIResponseKey returns the deterministic key for a prompt within a conversation.
// conversationID is included so cached AI responses never leak across
// conversations sharing the same prompt and schema fingerprint.
func AIResponseKey(prompt, contextFingerprint, conversationID string) string {
	h := md5.Sum([]byte(prompt + ":" + contextFingerprint + ":" + conversationID))
	return hex.EncodeToString(h[:])
}

// GetJSON fetches and unmarshals a cached value into dst.
func (n Namespace) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := n.cache.Get(ctx, n.prefix+":"+key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SetJSON marshals and stores v under key with this namespace's TTL.
func (n Namespace) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n.cache.Set(ctx, n.prefix+":"+key, raw, n.ttl)
	return nil
}

// Delete removes key from this namespace.
func (n Namespace) Delete(ctx context.Context, key string) {
	n.cache.Delete(ctx, n.prefix+":"+key)
}
