package assembler

import (
	"bytes"
	"testing"

	"github.com/quantarax/dispatch/internal/modcache"
	"github.com/quantarax/dispatch/internal/moduledesc"
)

// TestOutOfOrderAssembly mirrors spec.md §8 scenario 3: a 2560-byte module
// split into 3 chunks of 1024 bytes (last chunk 512 bytes), delivered out of
// order as 2, 0, 1.
func TestOutOfOrderAssembly(t *testing.T) {
	data := make([]byte, 2560)
	for i := range data {
		data[i] = byte(i)
	}
	desc, err := moduledesc.Compute("m", data, 1024)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if desc.TotalChunks != 3 {
		t.Fatalf("got %d chunks, want 3", desc.TotalChunks)
	}

	cache := modcache.New(4096, nil)
	if err := cache.PutSlot(desc.Name, int(desc.Size)); err != nil {
		t.Fatalf("PutSlot: %v", err)
	}
	asm := New(desc, cache)

	order := []uint32{2, 0, 1}
	for i, idx := range order {
		chunk, err := moduledesc.Chunk(data, desc, idx)
		if err != nil {
			t.Fatalf("Chunk(%d): %v", idx, err)
		}
		complete, err := asm.AddChunk(idx, chunk)
		if err != nil {
			t.Fatalf("AddChunk(%d): %v", idx, err)
		}
		wantComplete := i == len(order)-1
		if complete != wantComplete {
			t.Fatalf("AddChunk(%d) complete = %v, want %v", idx, complete, wantComplete)
		}
	}

	if !asm.IsComplete() {
		t.Fatal("assembler should report complete")
	}
	got, err := cache.Read(desc.Name)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reassembled bytes do not match original data")
	}
}

func TestAddChunkOutOfRange(t *testing.T) {
	desc, _ := moduledesc.Compute("m", make([]byte, 10), 4)
	cache := modcache.New(64, nil)
	_ = cache.PutSlot(desc.Name, int(desc.Size))
	asm := New(desc, cache)

	if _, err := asm.AddChunk(99, []byte{1}); err != ErrChunkIndexOutOfRange {
		t.Fatalf("want ErrChunkIndexOutOfRange, got %v", err)
	}
}

func TestAddChunkDuplicate(t *testing.T) {
	desc, _ := moduledesc.Compute("m", make([]byte, 8), 4)
	cache := modcache.New(64, nil)
	_ = cache.PutSlot(desc.Name, int(desc.Size))
	asm := New(desc, cache)

	if _, err := asm.AddChunk(0, make([]byte, 4)); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	if _, err := asm.AddChunk(0, make([]byte, 4)); err != ErrDuplicateChunk {
		t.Fatalf("want ErrDuplicateChunk, got %v", err)
	}
}

func TestAddChunkWrongSize(t *testing.T) {
	desc, _ := moduledesc.Compute("m", make([]byte, 8), 4)
	cache := modcache.New(64, nil)
	_ = cache.PutSlot(desc.Name, int(desc.Size))
	asm := New(desc, cache)

	if _, err := asm.AddChunk(0, make([]byte, 3)); err != ErrInvalidChunkSize {
		t.Fatalf("want ErrInvalidChunkSize, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	desc, _ := moduledesc.Compute("m", make([]byte, 12), 4)
	cache := modcache.New(64, nil)
	_ = cache.PutSlot(desc.Name, int(desc.Size))
	asm := New(desc, cache)

	if _, err := asm.AddChunk(0, make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	got, total := asm.Progress()
	if got != 1 || total != 3 {
		t.Fatalf("Progress() = (%d, %d), want (1, 3)", got, total)
	}
}
