package config

import "fmt"

// ErrReadOnlyMutation is the panic value raised by any write attempt on a
// View returned from GetReadonly, at any depth (spec.md §4.C: "attempting
// to set any key raises immediately and terminally in the caller").
var ErrReadOnlyMutation = fmt.Errorf("config: attempted mutation of a read-only view")

// View is the frozen wrapper type behind GetReadonly (spec.md "Design
// Notes": "use either a frozen/immutable wrapper type or a copy-on-read
// snapshot"). It wraps one node of a Document tree; Get/Index navigate
// without copying, and Set always panics.
type View struct {
	v any
}

// GetReadonly returns a View over doc, or over doc[section] if section is
// non-empty, denying mutation at any depth (spec.md §4.C).
func GetReadonly(doc Document, sectionName string) View {
	return View{v: section(doc, sectionName)}
}

// Value returns an independent deep copy of the value held by this node.
// A View must never hand out a live map/slice reference into the active
// document: a caller that type-asserts the result and mutates it in place
// would otherwise reach the active config directly, bypassing Set's panic
// (spec.md §4.C, §8 invariant 5: "any write attempt at any depth raises").
// Deep-copying on read closes that hole without requiring every nested
// access to route back through View.
func (rv View) Value() any {
	return DeepCopy(rv.v)
}

// Get navigates into a mapping node by key. ok is false if this node is not
// a mapping or the key is absent.
func (rv View) Get(key string) (View, bool) {
	m, ok := rv.v.(map[string]any)
	if !ok {
		return View{}, false
	}

	val, ok := m[key]

	return View{v: val}, ok
}

// Index navigates into a sequence node by position.
func (rv View) Index(i int) (View, bool) {
	s, ok := rv.v.([]any)
	if !ok || i < 0 || i >= len(s) {
		return View{}, false
	}

	return View{v: s[i]}, true
}

// Len returns the number of entries for a mapping or sequence node, else 0.
func (rv View) Len() int {
	switch t := rv.v.(type) {
	case map[string]any:
		return len(t)
	case []any:
		return len(t)
	default:
		return 0
	}
}

// Set always panics: the whole point of a View is that it cannot be
// mutated, at any depth (spec.md §4.C, §8 invariant 5).
func (rv View) Set(string, any) {
	panic(ErrReadOnlyMutation)
}

// GetDeepcopy returns an independently owned, fully mutable copy of doc, or
// of doc[section] if section is non-empty (spec.md §4.C).
func GetDeepcopy(doc Document, sectionName string) any {
	return DeepCopy(section(doc, sectionName))
}
