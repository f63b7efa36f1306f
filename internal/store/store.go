// Package store loads and saves named rasters. The scheduler resolves
// every raster it needs (hosts, weather series, steering-loaded
// treatments) by name through the Store interface, so tests can swap in
// an in-memory implementation.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spreadsim/internal/raster"
)

// Store resolves rasters by name.
type Store interface {
	ReadInt(name string) (*raster.Grid[int], error)
	ReadFloat(name string) (*raster.Grid[float64], error)
	WriteInt(name string, g *raster.Grid[int]) error
	WriteFloat(name string, g *raster.Grid[float64]) error
}

type rasterFile[T raster.Value] struct {
	Rows  int `json:"rows"`
	Cols  int `json:"cols"`
	Cells []T `json:"cells"`
}

// FileStore keeps each raster as a JSON file <name>.json under a
// directory.
type FileStore struct {
	dir string
}

// NewFileStore opens a raster directory, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name+".json")
}

func readGrid[T raster.Value](path string) (*raster.Grid[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rf rasterFile[T]
	if err := json.NewDecoder(f).Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(rf.Cells) != rf.Rows*rf.Cols {
		return nil, fmt.Errorf("%s: %d cells for %dx%d grid", path, len(rf.Cells), rf.Rows, rf.Cols)
	}
	g := raster.New[T](rf.Rows, rf.Cols)
	copy(g.Cells(), rf.Cells)
	return g, nil
}

func writeGrid[T raster.Value](path string, g *raster.Grid[T]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(rasterFile[T]{Rows: g.Rows, Cols: g.Cols, Cells: g.Cells()}); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// ReadInt implements Store.
func (fs *FileStore) ReadInt(name string) (*raster.Grid[int], error) {
	return readGrid[int](fs.path(name))
}

// ReadFloat implements Store.
func (fs *FileStore) ReadFloat(name string) (*raster.Grid[float64], error) {
	return readGrid[float64](fs.path(name))
}

// WriteInt implements Store.
func (fs *FileStore) WriteInt(name string, g *raster.Grid[int]) error {
	return writeGrid(fs.path(name), g)
}

// WriteFloat implements Store.
func (fs *FileStore) WriteFloat(name string, g *raster.Grid[float64]) error {
	return writeGrid(fs.path(name), g)
}

// ReadNames reads a series file listing one raster name per line, for
// weather and temperature series. Blank lines and #-comments are skipped.
func ReadNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// MemStore is an in-memory Store used by tests.
type MemStore struct {
	Ints   map[string]*raster.Grid[int]
	Floats map[string]*raster.Grid[float64]
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Ints:   make(map[string]*raster.Grid[int]),
		Floats: make(map[string]*raster.Grid[float64]),
	}
}

// ReadInt implements Store.
func (m *MemStore) ReadInt(name string) (*raster.Grid[int], error) {
	g, ok := m.Ints[name]
	if !ok {
		return nil, fmt.Errorf("raster %q not found", name)
	}
	return g.Clone(), nil
}

// ReadFloat implements Store.
func (m *MemStore) ReadFloat(name string) (*raster.Grid[float64], error) {
	g, ok := m.Floats[name]
	if !ok {
		return nil, fmt.Errorf("raster %q not found", name)
	}
	return g.Clone(), nil
}

// WriteInt implements Store.
func (m *MemStore) WriteInt(name string, g *raster.Grid[int]) error {
	m.Ints[name] = g.Clone()
	return nil
}

// WriteFloat implements Store.
func (m *MemStore) WriteFloat(name string, g *raster.Grid[float64]) error {
	m.Floats[name] = g.Clone()
	return nil
}
