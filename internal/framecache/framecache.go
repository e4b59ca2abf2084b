// Package framecache keeps recently rasterized preview frames keyed by
// timeline time.
package framecache

import (
	"image"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Entry struct {
	Pixels *image.RGBA
	Hash   uint64
}

// Cache is a bounded LRU of frames. It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[int64, Entry]
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[int64, Entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: c}, nil
}

// key quantises t to milliseconds.
func key(t float64) int64 {
	return int64(math.Round(t * 1000))
}

// Get returns the pixels cached for t when their layer hash still matches.
func (c *Cache) Get(t float64, hash uint64) (*image.RGBA, bool) {
	e, ok := c.entries.Get(key(t))
	if !ok || e.Hash != hash {
		return nil, false
	}
	return e.Pixels, true
}

func (c *Cache) Put(t float64, hash uint64, px *image.RGBA) {
	c.entries.Add(key(t), Entry{Pixels: px, Hash: hash})
}

func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) Purge() { c.entries.Purge() }
