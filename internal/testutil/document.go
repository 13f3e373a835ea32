package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/webcanvas/internal/painter"
)

// FakeDocument is a painter.Document whose snapshots are numbered.
//
// The nth call to Snapshot returns {"snap":n}, which lets tests tell
// which snapshot a viewer received.
type FakeDocument struct {
	mu        sync.Mutex
	snapshots int
	drawables map[string]*FakeDrawable

	// Err, when set, is returned by Snapshot.
	Err error
}

// NewFakeDocument creates a document with no drawables.
func NewFakeDocument() *FakeDocument {
	return &FakeDocument{drawables: make(map[string]*FakeDrawable)}
}

// Add registers a drawable under id and returns it.
func (d *FakeDocument) Add(id string, menu string) *FakeDrawable {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr := &FakeDrawable{MenuJSON: menu}
	d.drawables[id] = dr
	return dr
}

// Snapshots returns how many snapshots were produced.
func (d *FakeDocument) Snapshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshots
}

// Snapshot implements painter.Document.
func (d *FakeDocument) Snapshot() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	d.snapshots++
	return fmt.Sprintf(`{"snap":%d}`, d.snapshots), nil
}

// FindDrawable implements painter.Target.
func (d *FakeDocument) FindDrawable(id string) (painter.Drawable, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, ok := d.drawables[id]
	if !ok {
		return nil, false
	}
	return dr, true
}

// FakeDrawable records the instructions executed on it.
type FakeDrawable struct {
	MenuJSON string

	mu       sync.Mutex
	executed []string
}

// Menu implements painter.Drawable.
func (d *FakeDrawable) Menu() ([]byte, error) {
	return []byte(d.MenuJSON), nil
}

// Execute implements painter.Drawable.
func (d *FakeDrawable) Execute(instr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executed = append(d.executed, instr)
	return nil
}

// Executed returns the instructions received in order.
func (d *FakeDrawable) Executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}

// MemorySaver is a painter.FileSaver keeping files in memory.
type MemorySaver struct {
	mu    sync.Mutex
	files map[string][]byte

	// Err, when set, is returned by SaveFile.
	Err error
}

// NewMemorySaver creates an empty saver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{files: make(map[string][]byte)}
}

// SaveFile implements painter.FileSaver.
func (s *MemorySaver) SaveFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.files[path] = append([]byte(nil), data...)
	return nil
}

// File returns the content saved at path.
func (s *MemorySaver) File(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[path]
	return b, ok
}
