package moduledesc

import "testing"

func TestComputeChunkCounts(t *testing.T) {
	data := make([]byte, 1024)
	desc, err := Compute("m", data, 512)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if desc.TotalChunks != 2 {
		t.Fatalf("got %d chunks, want 2", desc.TotalChunks)
	}

	data2 := make([]byte, 2560)
	desc2, err := Compute("m2", data2, 1024)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if desc2.TotalChunks != 3 {
		t.Fatalf("got %d chunks, want 3", desc2.TotalChunks)
	}
}

func TestChunkLastChunkShorter(t *testing.T) {
	data := make([]byte, 2560)
	for i := range data {
		data[i] = byte(i)
	}
	desc, err := Compute("m", data, 1024)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	last, err := Chunk(data, desc, 2)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(last) != 512 {
		t.Fatalf("last chunk len = %d, want 512", len(last))
	}
}

func TestComputeRejectsEmptyName(t *testing.T) {
	if _, err := Compute("", []byte("x"), 16); err != ErrEmptyName {
		t.Fatalf("want ErrEmptyName, got %v", err)
	}
}

func TestComputeDeterministicDigest(t *testing.T) {
	data := []byte("hello module")
	d1, _ := Compute("m", data, 4)
	d2, _ := Compute("m", data, 4)
	if d1.Digest != d2.Digest {
		t.Fatalf("digest should be deterministic for identical bytes")
	}
}
