package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/webcanvas/internal/painter"
)

// ErrInvalidScene is returned for scenes that fail validation.
var ErrInvalidScene = errors.New("invalid scene")

// Scene is the on-disk form of a document.
type Scene struct {
	Title   string       `yaml:"title" json:"title"`
	Size    []int        `yaml:"size,omitempty" json:"size,omitempty"`
	Objects []ObjectSpec `yaml:"objects" json:"objects"`
}

// ObjectSpec describes one object of a scene.
type ObjectSpec struct {
	ID    string            `yaml:"id" json:"id"`
	Kind  string            `yaml:"kind" json:"kind"`
	Attrs map[string]string `yaml:"attrs,omitempty" json:"attrs,omitempty"`
	Menu  []MenuItem        `yaml:"menu,omitempty" json:"menu,omitempty"`
}

// MenuItem is one context menu entry. Exec is sent back verbatim by the
// viewer in an OBJEXEC request when the entry is chosen.
type MenuItem struct {
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title" json:"title"`
	Exec  string `yaml:"exec" json:"exec"`
}

// DefaultSize is the pad size used when a scene gives none.
var DefaultSize = [2]int{800, 600}

// Document is a live, mutable scene.
//
// Thread-safety: all methods are safe for concurrent use.
type Document struct {
	mu      sync.Mutex
	title   string
	size    [2]int
	objects []*Object
	index   map[string]*Object
	version uint64
}

// New builds a document from scene. The first version is 1.
func New(scene Scene) (*Document, error) {
	d := &Document{}
	if err := d.reset(scene); err != nil {
		return nil, err
	}
	d.version = 1
	return d, nil
}

// Replace swaps in the content of scene and advances the version.
// On error the document is left unchanged.
func (d *Document) Replace(scene Scene) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := &Document{}
	if err := next.reset(scene); err != nil {
		return err
	}
	d.title = next.title
	d.size = next.size
	d.objects = next.objects
	d.index = next.index
	for _, o := range d.objects {
		o.doc = d
	}
	d.version++
	return nil
}

func (d *Document) reset(scene Scene) error {
	size := DefaultSize
	if len(scene.Size) != 0 {
		if len(scene.Size) != 2 || scene.Size[0] <= 0 || scene.Size[1] <= 0 {
			return fmt.Errorf("%w: size must be two positive numbers, got %v", ErrInvalidScene, scene.Size)
		}
		size = [2]int{scene.Size[0], scene.Size[1]}
	}

	objects := make([]*Object, 0, len(scene.Objects))
	index := make(map[string]*Object, len(scene.Objects))
	for i, spec := range scene.Objects {
		id := norm.NFC.String(spec.ID)
		if err := validateID(id); err != nil {
			return fmt.Errorf("%w: object %d: %v", ErrInvalidScene, i, err)
		}
		if _, dup := index[id]; dup {
			return fmt.Errorf("%w: duplicate object id %q", ErrInvalidScene, id)
		}

		attrs := make(map[string]string, len(spec.Attrs))
		for k, v := range spec.Attrs {
			attrs[k] = v
		}
		menu := make([]MenuItem, len(spec.Menu))
		for j, item := range spec.Menu {
			menu[j] = MenuItem{
				Name:  norm.NFC.String(item.Name),
				Title: norm.NFC.String(item.Title),
				Exec:  item.Exec,
			}
		}

		o := &Object{doc: d, id: id, kind: spec.Kind, attrs: attrs, menu: menu}
		objects = append(objects, o)
		index[id] = o
	}

	d.title = norm.NFC.String(scene.Title)
	d.size = size
	d.objects = objects
	d.index = index
	return nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return errors.New("empty id")
	case id == painter.DocumentObjectID:
		return fmt.Errorf("id %q is reserved", id)
	case strings.ContainsAny(id, ":#"):
		return fmt.Errorf("id %q contains ':' or '#'", id)
	}
	return nil
}

// Version returns the modification counter. It starts at 1 and grows
// with every mutation.
func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Title returns the scene title.
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

// Len returns the number of objects.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

// FindDrawable implements painter.Target. Ids are compared in NFC form.
func (d *Document) FindDrawable(id string) (painter.Drawable, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.index[norm.NFC.String(id)]
	if !ok {
		return nil, false
	}
	return o, true
}

type padItem struct {
	Typename   string          `json:"_typename"`
	ObjID      string          `json:"objid"`
	Title      string          `json:"title"`
	Size       [2]int          `json:"size"`
	Primitives []primitiveItem `json:"primitives"`
}

type primitiveItem struct {
	Typename string            `json:"_typename"`
	ObjID    string            `json:"objid"`
	Kind     string            `json:"kind"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Snapshot implements painter.Document. It renders the whole scene as one
// JSON pad display item.
func (d *Document) Snapshot() (string, error) {
	d.mu.Lock()
	item := padItem{
		Typename:   "PadDisplayItem",
		ObjID:      painter.DocumentObjectID,
		Title:      d.title,
		Size:       d.size,
		Primitives: make([]primitiveItem, 0, len(d.objects)),
	}
	for _, o := range d.objects {
		attrs := make(map[string]string, len(o.attrs))
		for k, v := range o.attrs {
			attrs[k] = v
		}
		item.Primitives = append(item.Primitives, primitiveItem{
			Typename: "ObjectDisplayItem",
			ObjID:    o.id,
			Kind:     o.kind,
			Attrs:    attrs,
		})
	}
	d.mu.Unlock()

	b, err := marshalJSON(item)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(b), nil
}

// marshalJSON encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
