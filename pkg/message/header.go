package message

import (
	"github.com/indigo-web/utils/strcomp"
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Names compare
// case-insensitively; duplicates are kept as separate entries in the order
// they were added.
type Header []Field

// Add appends a field, keeping any existing fields with the same name.
func (h *Header) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

// Set replaces every field named name with a single one. The new field takes
// the position of the first replaced field, or is appended.
func (h *Header) Set(name, value string) {
	out := (*h)[:0]
	placed := false
	for _, f := range *h {
		if !strcomp.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !placed {
			out = append(out, Field{Name: f.Name, Value: value})
			placed = true
		}
	}
	*h = out
	if !placed {
		h.Add(name, value)
	}
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strcomp.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Get returns the value of the first field named name.
func (h Header) Get(name string) string {
	value, _ := h.Lookup(name)
	return value
}

// Lookup is like Get but reports whether the field exists.
func (h Header) Lookup(name string) (string, bool) {
	for _, f := range h {
		if strcomp.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns the values of every field named name, in order.
func (h Header) Values(name string) []string {
	var values []string
	for _, f := range h {
		if strcomp.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Has reports whether a field named name is present.
func (h Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Clone returns a copy that shares no memory with h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	return append(Header(nil), h...)
}

// Map groups values by name. Names keep the spelling of their first
// occurrence.
func (h Header) Map() map[string][]string {
	m := make(map[string][]string, len(h))
	canonical := make([]string, 0, len(h))
	for _, f := range h {
		key := f.Name
		for _, c := range canonical {
			if strcomp.EqualFold(c, f.Name) {
				key = c
				break
			}
		}
		if _, seen := m[key]; !seen {
			canonical = append(canonical, key)
		}
		m[key] = append(m[key], f.Value)
	}
	return m
}
