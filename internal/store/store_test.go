package store

import (
	"os"
	"path/filepath"
	"testing"

	"spreadsim/internal/raster"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	g := raster.New[int](2, 3)
	g.Set(0, 0, 5)
	g.Set(1, 2, 9)
	if err := fs.WriteInt("host", g); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}

	got, err := fs.ReadInt("host")
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if !got.Equal(g) {
		t.Error("round-tripped grid differs")
	}
}

func TestFileStoreMissingRaster(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs.ReadFloat("nope"); err == nil {
		t.Error("expected error for missing raster")
	}
}

func TestFileStoreRejectsCellMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"rows":2,"cols":2,"cells":[1,2,3]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs.ReadInt("bad"); err == nil {
		t.Error("expected error for cell count mismatch")
	}
}

func TestReadNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.txt")
	content := "coef_2000_w00\n\n# comment\ncoef_2000_w01\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	names, err := ReadNames(path)
	if err != nil {
		t.Fatalf("ReadNames: %v", err)
	}
	if len(names) != 2 || names[0] != "coef_2000_w00" || names[1] != "coef_2000_w01" {
		t.Errorf("names = %v", names)
	}
}

func TestMemStoreClonesOnRead(t *testing.T) {
	m := NewMemStore()
	g := raster.New[int](1, 1)
	g.Set(0, 0, 4)
	m.Ints["host"] = g

	got, err := m.ReadInt("host")
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	got.Set(0, 0, 99)
	again, _ := m.ReadInt("host")
	if again.At(0, 0) != 4 {
		t.Error("MemStore handed out shared storage")
	}
}
