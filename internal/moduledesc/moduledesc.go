// Package moduledesc builds a wire.ModuleDescriptor from a module binary and
// slices that binary into the chunks the distributor streams out (§3 Module
// descriptor, §4.C last-chunk sizing). It is grounded on the teacher
// repository's file chunker, narrowed from a whole-file manifest with a
// Merkle tree down to the single BLAKE3 content digest this specification
// calls for.
package moduledesc

import (
	"errors"

	"github.com/zeebo/blake3"

	"github.com/quantarax/dispatch/internal/wire"
)

// ErrEmptyName rejects a module registered without a name, since the name is
// the cache key on both sides (§3).
var ErrEmptyName = errors.New("moduledesc: module name must not be empty")

// Compute builds the descriptor and content digest for a module binary. The
// returned descriptor's TotalChunks matches what the assembler on the
// worker side expects: ceil(len(data) / chunkSize).
func Compute(name string, data []byte, chunkSize uint32) (wire.ModuleDescriptor, error) {
	if name == "" {
		return wire.ModuleDescriptor{}, ErrEmptyName
	}
	if chunkSize == 0 {
		chunkSize = 1024
	}

	size := uint32(len(data))
	totalChunks := size / chunkSize
	if size%chunkSize != 0 {
		totalChunks++
	}
	if totalChunks == 0 {
		totalChunks = 1 // an empty module still occupies one (empty) chunk
	}

	h := blake3.New()
	h.Write(data)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return wire.ModuleDescriptor{
		Name:        name,
		Size:        size,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Digest:      digest,
	}, nil
}

// Chunk returns the bytes of chunk index (0-based) of data, sized per
// ChunkSize except for the last chunk which may be shorter (§4.C).
func Chunk(data []byte, desc wire.ModuleDescriptor, index uint32) ([]byte, error) {
	if index >= desc.TotalChunks {
		return nil, errors.New("moduledesc: chunk index out of range")
	}
	start := int(index) * int(desc.ChunkSize)
	if start > len(data) {
		return []byte{}, nil
	}
	end := start + int(desc.ChunkSize)
	if end > len(data) {
		end = len(data)
	}
	return data[start:end], nil
}
