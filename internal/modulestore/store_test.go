package modulestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantarax/dispatch/internal/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	desc := wire.ModuleDescriptor{Name: "m", Size: 4, ChunkSize: 4, TotalChunks: 1, Digest: [32]byte{1, 2, 3}}
	data := []byte{9, 9, 9, 9}

	if err := s.Put(desc, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gotDesc, gotData, err := s.Get("m")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotDesc != desc {
		t.Fatalf("got descriptor %#v, want %#v", gotDesc, desc)
	}
	if !bytes.Equal(gotData, data) {
		t.Fatalf("got data %v, want %v", gotData, data)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.Get("missing"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestNamesAndSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	desc := wire.ModuleDescriptor{Name: "m", Size: 2, ChunkSize: 2, TotalChunks: 1}
	if err := s.Put(desc, []byte{1, 2}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file on disk: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer s2.Close()

	names, err := s2.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 1 || names[0] != "m" {
		t.Fatalf("got names %v, want [m]", names)
	}
}
