package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/catuchi/LawMadeSimple-sub002/internal/contenthash"
)

// Cache is a concurrency-safe LRU of embeddings keyed by the content hash of the text.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to size embeddings. A non-positive size disables caching.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return &Cache{}, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns a copy of the cached embedding for text.
func (c *Cache) Get(text string) ([]float32, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	v, ok := c.lru.Get(contenthash.Hash(text))
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a copy of the embedding for text.
func (c *Cache) Set(text string, emb []float32) {
	if c == nil || c.lru == nil {
		return
	}
	v := make([]float32, len(emb))
	copy(v, emb)
	c.lru.Add(contenthash.Hash(text), v)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
