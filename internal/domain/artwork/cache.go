// Package artwork provides a bounded in-memory cache of decoded cover
// images, keyed by the track's file locator so re-scans of the same file
// reuse the decoded image.
package artwork

import (
	"bytes"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"sync"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/resonata-audio/resonata/internal/domain/track"
)

// DefaultMaxEntries bounds the cache when no explicit capacity is given.
const DefaultMaxEntries = 50

// Cache is a readers-many/writer-exclusive image cache. Lookups run
// concurrently; only insert and evict take the write lock. Eviction is
// FIFO by insertion: when the bound is exceeded the oldest half is dropped.
type Cache struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string]image.Image
	order      []string

	pressureOnce sync.Once
}

// NewCache creates a cache bounded at maxEntries (DefaultMaxEntries if <= 0).
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]image.Image),
	}
}

// Image returns the decoded artwork for a track, decoding and caching it on
// first use. Returns nil when the track has no artwork or the blob cannot be
// decoded.
func (c *Cache) Image(t track.Track) image.Image {
	key := t.Locator.Path

	c.mu.RLock()
	img, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return img
	}

	if len(t.Artwork) == 0 {
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(t.Artwork))
	if err != nil {
		log.Debug().Err(err).Str("path", key).Msg("Artwork decode failed")
		return nil
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		// Another goroutine decoded the same blob first.
		c.mu.Unlock()
		return existing
	}
	c.entries[key] = img
	c.order = append(c.order, key)
	over := len(c.entries) > c.maxEntries
	c.mu.Unlock()

	if over {
		go c.evictOldest()
	}

	return img
}

// evictOldest drops the oldest half of the cache when the bound is exceeded.
func (c *Cache) evictOldest() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) <= c.maxEntries {
		return
	}

	drop := len(c.order) / 2
	for _, key := range c.order[:drop] {
		delete(c.entries, key)
	}
	c.order = append([]string(nil), c.order[drop:]...)

	log.Debug().Int("dropped", drop).Int("remaining", len(c.entries)).Msg("Artwork cache evicted")
}

// Clear removes all entries. Safe to call from any goroutine.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]image.Image)
	c.order = nil
	c.mu.Unlock()
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MonitorPressure registers a one-time hook that clears the cache whenever
// the given channel signals memory pressure. Subsequent calls are no-ops.
func (c *Cache) MonitorPressure(signals <-chan struct{}) {
	c.pressureOnce.Do(func() {
		go func() {
			for range signals {
				log.Info().Msg("Memory pressure signal, clearing artwork cache")
				c.Clear()
			}
		}()
	})
}
