package sfx

import (
	"fmt"
	"sync"
)

// Cache stores rendered effects keyed by kind and parameters, so a session
// that places the same bell twelve times synthesizes it once. The cache is
// injected into the renderer; tests substitute their own.
type Cache interface {
	GetOrGenerate(k Kind, p Params) ([]float32, error)
}

// MemoryCache is the in-process Cache used by the session pipeline.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string][]float32
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]float32)}
}

// GetOrGenerate returns the cached render or synthesizes and stores it.
// Callers must not mutate the returned slice.
func (c *MemoryCache) GetOrGenerate(k Kind, p Params) ([]float32, error) {
	key := cacheKey(k, p)

	c.mu.Lock()
	if got, ok := c.items[key]; ok {
		c.mu.Unlock()
		return got, nil
	}
	c.mu.Unlock()

	// Synthesize outside the lock; a duplicate render on a race is cheaper
	// than serializing all synthesis.
	out, err := Synthesize(k, p)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items[key] = out
	c.mu.Unlock()
	return out, nil
}

// Len reports how many distinct renders are cached.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func cacheKey(k Kind, p Params) string {
	return fmt.Sprintf("%s|%d|%g|%g|%g|%d", k, p.SampleRate, p.DurationS, p.BaseHz, p.Intensity, p.Seed)
}
