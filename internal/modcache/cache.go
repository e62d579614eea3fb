// Package modcache implements the worker's bounded-capacity module binary
// store (§4.B). It is grounded on the teacher repository's ChunkBitmap/
// BitmapStore shape — a mutex-guarded in-memory table with the same
// get/put/remove vocabulary — generalized from tracking received chunks to
// holding the assembled bytes themselves under a frequency²/size eviction
// policy, since a worker device has no equivalent of the teacher's
// SQLite-backed persistence layer to fall back on.
package modcache

import (
	"errors"
	"sync"

	"github.com/quantarax/dispatch/internal/observability"
)

// ErrCacheFull means size would not fit even after evicting every other
// entry (§4.B put_slot).
var ErrCacheFull = errors.New("modcache: module too large for cache capacity")

// ErrNotFound means the named module is not present in the cache.
var ErrNotFound = errors.New("modcache: module not found")

// ErrSliceOutOfRange means a write_slice call would run past the end of the
// slot reserved by put_slot.
var ErrSliceOutOfRange = errors.New("modcache: write offset out of range")

type entry struct {
	data       []byte
	access     uint64
	generation uint64 // insertion order, used only to break tied scores
}

// Cache is a content-addressed, size-bounded store of module binaries. All
// methods are safe for concurrent use, though in practice only the worker's
// single cooperative loop touches it (§5).
type Cache struct {
	mu         sync.Mutex
	capacity   int
	allocated  int
	entries    map[string]*entry
	generation uint64
	metrics    *observability.Metrics
}

// New returns an empty Cache with the given total byte capacity. metrics
// may be nil, in which case cache hit/miss/eviction counters are skipped.
func New(capacity int, metrics *observability.Metrics) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*entry),
		metrics:  metrics,
	}
}

// PutSlot reserves a zero-filled, size-byte slot for name, evicting
// lowest-scoring entries until there is room. If name already has a slot it
// is dropped first. PutSlot allocates the buffer once and performs no
// further heap growth — write_slice only ever writes into this buffer
// (§9 Design Notes: hot-path allocation).
func (c *Cache) PutSlot(name string, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[name]; ok {
		c.allocated -= len(existing.data)
		delete(c.entries, name)
	}

	for c.capacity-c.allocated < size {
		if _, ok := c.evictOneLocked(); !ok {
			break
		}
	}
	if c.capacity-c.allocated < size {
		return ErrCacheFull
	}

	c.generation++
	c.entries[name] = &entry{
		data:       make([]byte, size),
		access:     1,
		generation: c.generation,
	}
	c.allocated += size
	return nil
}

// WriteSlice writes data into name's slot at offset. The slot must already
// exist (via PutSlot) and be large enough to hold offset+len(data).
func (c *Cache) WriteSlice(name string, offset int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return ErrNotFound
	}
	if offset < 0 || offset+len(data) > len(e.data) {
		return ErrSliceOutOfRange
	}
	copy(e.data[offset:], data)
	e.access++
	return nil
}

// Read returns the bytes stored for name and increments its usage counter.
func (c *Cache) Read(name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return nil, ErrNotFound
	}
	e.access++
	return e.data, nil
}

// Contains reports whether name currently has a slot, without affecting its
// usage counter. This is the cache-hit/miss decision point for an incoming
// ServerTask (§4.B), so it records the lookup outcome.
func (c *Cache) Contains(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[name]
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(ok)
	}
	return ok
}

// Remove drops name's slot, if any.
func (c *Cache) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return ErrNotFound
	}
	c.allocated -= len(e.data)
	delete(c.entries, name)
	return nil
}

// Allocated returns the number of bytes currently reserved across all slots.
func (c *Cache) Allocated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// Names returns the names of every module currently resident, in no
// particular order. It is what a worker reports in ClientReady/ClientAck's
// cached-modules list (§4.D).
func (c *Cache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

// evictOneLocked removes the entry with the lowest access²/size score,
// comparing scores via an integer cross-product so no floating point is
// involved (§4.B). Ties are broken by evicting the older insertion, keeping
// the pass stable across repeated calls.
func (c *Cache) evictOneLocked() (string, bool) {
	var victimName string
	var victim *entry
	for name, e := range c.entries {
		if victim == nil || scoreLess(e, victim, name, victimName) {
			victimName = name
			victim = e
		}
	}
	if victim == nil {
		return "", false
	}
	c.allocated -= len(victim.data)
	delete(c.entries, victimName)
	if c.metrics != nil {
		c.metrics.RecordCacheEviction()
	}
	return victimName, true
}

// scoreLess reports whether a's eviction score (access²/size) is lower than
// b's — i.e. whether a is the more desirable victim — comparing
// a.access²·b.size against b.access²·a.size to avoid floating point. Ties
// fall back to insertion order so the pass is deterministic.
func scoreLess(a, b *entry, aName, bName string) bool {
	aSize := uint64(len(a.data))
	bSize := uint64(len(b.data))
	aScore := a.access * a.access * bSize
	bScore := b.access * b.access * aSize
	if aScore != bScore {
		return aScore < bScore
	}
	return a.generation < b.generation
}
