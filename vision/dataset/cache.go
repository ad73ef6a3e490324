package dataset

import (
	"container/list"
	"fmt"
	"image"
	"sync"
)

type cachedSample struct {
	img   image.Image
	label int
}

// CachedProvider keeps the most recently decoded samples of another
// provider in memory. It pays off when the server handles several runs.
type CachedProvider struct {
	source SampleProvider

	mu      sync.Mutex
	cache   map[int]cachedSample
	lru     *list.List
	lruMap  map[int]*list.Element
	maxSize int

	// Statistics
	hits   int64
	misses int64
}

// NewCachedProvider wraps source with an LRU of at most maxSize samples.
func NewCachedProvider(source SampleProvider, maxSize int) *CachedProvider {
	if maxSize < 1 {
		maxSize = 1
	}
	return &CachedProvider{
		source:  source,
		cache:   make(map[int]cachedSample),
		lru:     list.New(),
		lruMap:  make(map[int]*list.Element),
		maxSize: maxSize,
	}
}

func (c *CachedProvider) Len() int             { return c.source.Len() }
func (c *CachedProvider) ClassNames() []string { return c.source.ClassNames() }

// Sample returns the cached image for index, decoding it on a miss. Failed
// decodes are not cached.
func (c *CachedProvider) Sample(index int) (image.Image, int, error) {
	c.mu.Lock()
	if s, ok := c.cache[index]; ok {
		c.lru.MoveToFront(c.lruMap[index])
		c.hits++
		c.mu.Unlock()
		return s.img, s.label, nil
	}
	c.misses++
	c.mu.Unlock()

	img, label, err := c.source.Sample(index)
	if err != nil {
		return nil, 0, err
	}
	c.put(index, cachedSample{img: img, label: label})
	return img, label, nil
}

func (c *CachedProvider) put(index int, s cachedSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.lruMap[index]; exists {
		c.lru.MoveToFront(elem)
		return
	}

	c.lruMap[index] = c.lru.PushFront(index)
	c.cache[index] = s

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		key := oldest.Value.(int)
		c.lru.Remove(oldest)
		delete(c.lruMap, key)
		delete(c.cache, key)
	}
}

// Stats returns cache statistics
func (c *CachedProvider) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

// String returns a string representation of cache stats
func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
