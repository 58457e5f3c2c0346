package asset

import (
	"encoding/hex"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// CompileCache is a content-addressed LRU cache of compile hook output,
// shared across assets through the pipeline. Keys combine the descriptor's
// content type with a hash of the pre-compile content, so a file reverted
// to earlier content skips recompilation.
type CompileCache struct {
	entries *lru.Cache[string, string]
}

// NewCompileCache creates a compile cache holding up to size entries.
func NewCompileCache(size int) (*CompileCache, error) {
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}

	return &CompileCache{entries: entries}, nil
}

// Get returns the cached compile output for key. Nil caches always miss.
func (c *CompileCache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}

	return c.entries.Get(key)
}

// Add stores compile output under key. Nil caches drop the value.
func (c *CompileCache) Add(key, value string) {
	if c == nil {
		return
	}
	c.entries.Add(key, value)
}

// Len returns the number of cached entries.
func (c *CompileCache) Len() int {
	if c == nil {
		return 0
	}

	return c.entries.Len()
}

// contentKey builds a cache key from a content type and content hash.
func contentKey(contentType, content string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(content))

	var sum [16]byte
	_, _ = io.ReadFull(h.Digest(), sum[:])

	return contentType + ":" + hex.EncodeToString(sum[:])
}
