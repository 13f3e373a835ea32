package document

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownInstruction is returned by Execute for instructions the object
// does not understand.
var ErrUnknownInstruction = errors.New("unknown instruction")

// Object is one addressable element of a document.
// It implements painter.Drawable.
type Object struct {
	doc   *Document
	id    string
	kind  string
	attrs map[string]string
	menu  []MenuItem
}

// ID returns the object id.
func (o *Object) ID() string {
	return o.id
}

// Attr returns the value of attribute key.
func (o *Object) Attr(key string) (string, bool) {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	v, ok := o.attrs[key]
	return v, ok
}

// Menu returns the context menu as a JSON array of {name,title,exec}.
// Objects without configured entries get one entry per attribute.
func (o *Object) Menu() ([]byte, error) {
	o.doc.mu.Lock()
	items := o.menu
	if len(items) == 0 {
		items = defaultMenu(o.attrs)
	}
	o.doc.mu.Unlock()

	if items == nil {
		items = []MenuItem{}
	}
	return marshalJSON(items)
}

func defaultMenu(attrs map[string]string) []MenuItem {
	keys := sortedKeys(attrs)
	items := make([]MenuItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, MenuItem{
			Name:  "Set" + k,
			Title: "Set " + k,
			Exec:  fmt.Sprintf("SetAttr(%s,%s)", k, attrs[k]),
		})
	}
	return items
}

// Execute applies one instruction:
//
//	SetAttr(key,value)   set or replace an attribute
//	ClearAttr(key)       remove an attribute
//
// Every applied instruction advances the document version.
func (o *Object) Execute(instr string) error {
	name, args, err := parseCall(instr)
	if err != nil {
		return err
	}

	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()

	switch name {
	case "SetAttr":
		if len(args) != 2 || args[0] == "" {
			return fmt.Errorf("%w: SetAttr needs (key,value), got %q", ErrUnknownInstruction, instr)
		}
		o.attrs[args[0]] = args[1]

	case "ClearAttr":
		if len(args) != 1 || args[0] == "" {
			return fmt.Errorf("%w: ClearAttr needs (key), got %q", ErrUnknownInstruction, instr)
		}
		if _, ok := o.attrs[args[0]]; !ok {
			return nil
		}
		delete(o.attrs, args[0])

	default:
		return fmt.Errorf("%w: %q", ErrUnknownInstruction, name)
	}

	o.doc.version++
	return nil
}

// parseCall splits Name(a,b,...) into its name and trimmed arguments.
func parseCall(instr string) (string, []string, error) {
	instr = strings.TrimSpace(instr)
	open := strings.IndexByte(instr, '(')
	if open <= 0 || !strings.HasSuffix(instr, ")") {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, instr)
	}
	name := instr[:open]
	inner := instr[open+1 : len(instr)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, nil
	}
	args := strings.Split(inner, ",")
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	return name, args, nil
}
