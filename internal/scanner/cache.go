package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// promptHash is the cache key of a fully rendered prompt.
func promptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// retrievalCache holds inference answers for the prompts of one file. It is
// created per file and dropped when the file is done, so it never evicts.
type retrievalCache struct {
	enabled bool
	mu      sync.Mutex
	entries map[string]string
}

func newRetrievalCache(enabled bool) *retrievalCache {
	return &retrievalCache{enabled: enabled, entries: make(map[string]string)}
}

func (c *retrievalCache) get(key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *retrievalCache) put(key, value string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}
