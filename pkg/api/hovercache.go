package api

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// HoverCache memoises region lookups per exact pointer position. A pointer
// that rests or revisits a spot repeats the same coordinates, and keying on
// them keeps every answer identical to a direct lookup, also along borders
// and over enclaves smaller than any grid.
type HoverCache struct {
	cache *ristretto.Cache
}

// hoverHit is the cached lookup result. An empty ID records a miss.
type hoverHit struct {
	ID string
}

// NewHoverCache creates a cache holding up to maxPoints positions.
func NewHoverCache(maxPoints int64) (*HoverCache, error) {
	if maxPoints <= 0 {
		maxPoints = 1 << 16
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxPoints * 10,
		MaxCost:     maxPoints,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("hover cache: %w", err)
	}
	return &HoverCache{cache: c}, nil
}

// Resolve returns the region under (x, y), calling locate on a cache miss.
// hit reports whether the cache answered.
func (h *HoverCache) Resolve(x, y float64, locate func(x, y float64) (string, bool)) (id string, found, hit bool) {
	if h == nil {
		id, found = locate(x, y)
		return id, found, false
	}
	key := fmt.Sprintf("%g:%g", x, y)
	if v, ok := h.cache.Get(key); ok {
		res := v.(hoverHit)
		return res.ID, res.ID != "", true
	}
	id, found = locate(x, y)
	h.cache.Set(key, hoverHit{ID: id}, 1)
	return id, found, false
}

// Wait blocks until buffered writes are applied.
func (h *HoverCache) Wait() {
	if h != nil {
		h.cache.Wait()
	}
}

// Close releases the cache goroutines.
func (h *HoverCache) Close() {
	if h != nil {
		h.cache.Close()
	}
}
