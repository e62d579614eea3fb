// Package assembler implements the worker's chunked transfer assembler
// (§4.C): it accepts module chunks in any order and reports completion once
// every chunk has landed in the module cache. The acknowledged-chunk bitset
// is grounded on the teacher repository's ChunkBitmap, narrowed to the one
// thing this specification needs from it — set/has/complete — since the
// worker does not persist partial transfers across restarts.
package assembler

import (
	"errors"

	"github.com/quantarax/dispatch/internal/modcache"
	"github.com/quantarax/dispatch/internal/wire"
)

var (
	// ErrChunkIndexOutOfRange means index is not in [0, TotalChunks).
	ErrChunkIndexOutOfRange = errors.New("assembler: chunk index out of range")
	// ErrDuplicateChunk means index was already received.
	ErrDuplicateChunk = errors.New("assembler: duplicate chunk")
	// ErrInvalidChunkSize means the chunk's byte length does not match what
	// its position in the module requires.
	ErrInvalidChunkSize = errors.New("assembler: invalid chunk size")
)

// Assembler reconstructs one module's binary into a modcache slot as chunks
// arrive, in any order.
type Assembler struct {
	desc   wire.ModuleDescriptor
	cache  *modcache.Cache
	bitmap []byte
	got    uint32
}

// New returns an Assembler for desc. The caller must already have reserved
// desc.Name's slot in cache (via modcache.Cache.PutSlot) before feeding it
// chunks — the assembler only ever writes into an existing slot.
func New(desc wire.ModuleDescriptor, cache *modcache.Cache) *Assembler {
	return &Assembler{
		desc:   desc,
		cache:  cache,
		bitmap: make([]byte, (desc.TotalChunks+7)/8),
	}
}

// chunkSize returns the expected length of chunk index, accounting for a
// shorter final chunk (§4.C).
func (a *Assembler) chunkSize(index uint32) int {
	if index == a.desc.TotalChunks-1 {
		return int(a.desc.Size) - int(a.desc.ChunkSize)*int(a.desc.TotalChunks-1)
	}
	return int(a.desc.ChunkSize)
}

func (a *Assembler) hasChunk(index uint32) bool {
	return a.bitmap[index/8]&(1<<(index%8)) != 0
}

func (a *Assembler) markChunk(index uint32) {
	a.bitmap[index/8] |= 1 << (index % 8)
	a.got++
}

// AddChunk feeds one chunk's bytes into the assembler. It returns complete
// == true once every chunk has been received; after that the module's full
// bytes are readable via cache.Read(desc.Name).
func (a *Assembler) AddChunk(index uint32, data []byte) (complete bool, err error) {
	if index >= a.desc.TotalChunks {
		return false, ErrChunkIndexOutOfRange
	}
	if a.hasChunk(index) {
		return false, ErrDuplicateChunk
	}
	if len(data) != a.chunkSize(index) {
		return false, ErrInvalidChunkSize
	}

	offset := int(index) * int(a.desc.ChunkSize)
	if err := a.cache.WriteSlice(a.desc.Name, offset, data); err != nil {
		return false, err
	}

	a.markChunk(index)
	return a.got == a.desc.TotalChunks, nil
}

// IsComplete reports whether every chunk has been received.
func (a *Assembler) IsComplete() bool {
	return a.got == a.desc.TotalChunks
}

// Progress returns (received, total) chunk counts.
func (a *Assembler) Progress() (received, total uint32) {
	return a.got, a.desc.TotalChunks
}
