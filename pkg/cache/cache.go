// Package cache provides a size-bounded, content-addressed cache of
// conversion results. Keys are SHA-256 digests over the source text and
// the option fingerprint; stored output is LZ4 block compressed. Used by
// the CLI batch path to skip reconverting unchanged files.
package cache

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"
)

// DefaultMaxSize is the default memory bound for cached output (64 MB).
const DefaultMaxSize = 64 * 1024 * 1024

// Key addresses one conversion: source content plus options.
type Key [sha256.Size]byte

// KeyFor derives the cache key for a source text converted under the
// given option fingerprint.
func KeyFor(source, fingerprint string) Key {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))

	var key Key

	copy(key[:], h.Sum(nil))

	return key
}

// Cache is an LRU over compressed conversion output. Safe for concurrent
// use.
type Cache struct {
	mu          sync.Mutex
	entries     map[Key]*entry
	head        *entry // Most recently used.
	tail        *entry // Least recently used.
	maxSize     int64
	currentSize int64

	// Metrics (atomic for lock-free reads).
	hits   atomic.Int64
	misses atomic.Int64
}

// entry is a doubly-linked list node for LRU tracking.
type entry struct {
	key         Key
	compressed  []byte
	rawLen      int
	accessCount int64
	prev        *entry
	next        *entry
}

// New returns a cache bounded to maxSize bytes of compressed output.
func New(maxSize int64) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Cache{
		entries: make(map[Key]*entry),
		maxSize: maxSize,
	}
}

// Get returns the cached output for key, if present.
func (c *Cache) Get(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return "", false
	}

	text, err := decompress(e.compressed, e.rawLen)
	if err != nil {
		// A corrupt entry is dropped rather than served.
		c.removeFromList(e)
		delete(c.entries, key)
		c.currentSize -= int64(len(e.compressed))
		c.misses.Add(1)

		return "", false
	}

	c.hits.Add(1)

	e.accessCount++
	c.moveToFront(e)

	return text, true
}

// Put stores the output for key, evicting older entries as needed.
func (c *Cache) Put(key Key, text string) {
	compressed, err := compress([]byte(text))
	if err != nil {
		return
	}

	size := int64(len(compressed))
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.accessCount++
		c.moveToFront(e)

		return
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	e := &entry{
		key:         key,
		compressed:  compressed,
		rawLen:      len(text),
		accessCount: 1,
	}

	c.entries[key] = e
	c.currentSize += size
	c.addToFront(e)
}

// Stats returns cache performance counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*entry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

// compress LZ4-block-compresses data. Incompressible input is stored raw,
// signalled by rawLen == len(compressed) on the entry.
func compress(data []byte) ([]byte, error) {
	var compressor lz4.Compressor

	buf := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := compressor.CompressBlock(data, buf)
	if err != nil {
		return nil, err
	}

	if n == 0 || n >= len(data) {
		raw := make([]byte, len(data))
		copy(raw, data)

		return raw, nil
	}

	return buf[:n], nil
}

func decompress(compressed []byte, rawLen int) (string, error) {
	if len(compressed) == rawLen {
		return string(compressed), nil
	}

	buf := make([]byte, rawLen)

	n, err := lz4.UncompressBlock(compressed, buf)
	if err != nil {
		return "", err
	}

	return string(buf[:n]), nil
}

func (c *Cache) moveToFront(e *entry) {
	if e == c.head {
		return
	}

	c.removeFromList(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *entry) {
	e.prev = nil
	e.next = c.head

	if c.head != nil {
		c.head.prev = e
	}

	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) removeFromList(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

// evictionSampleSize bounds the tail scan for size-aware eviction.
const evictionSampleSize = 5

// evictLowestCost removes the least valuable entry near the LRU tail:
// large, rarely-accessed output goes first.
func (c *Cache) evictLowestCost() {
	if c.tail == nil {
		return
	}

	var candidates [evictionSampleSize]*entry

	count := 0

	for e := c.tail; e != nil && count < evictionSampleSize; e = e.prev {
		candidates[count] = e
		count++
	}

	victim := candidates[0]
	lowest := victim.cost()

	for i := 1; i < count; i++ {
		if cost := candidates[i].cost(); cost < lowest {
			lowest = cost
			victim = candidates[i]
		}
	}

	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= int64(len(victim.compressed))
}

// cost ranks an entry for eviction: higher means more worth keeping.
func (e *entry) cost() float64 {
	sizeKB := float64(len(e.compressed)) / 1024.0
	if sizeKB < 1 {
		sizeKB = 1
	}

	return float64(e.accessCount) / sizeKB
}
