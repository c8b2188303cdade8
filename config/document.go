// Package config implements the Config Store, View Layer, and Validator
// components of the clusterwide configuration applier (spec.md §4.A, §4.C,
// §4.D): loading/writing the YAML document on disk, the external __file
// inlining transform, read-only/deep-copy view semantics, and structural
// plus role-dispatched validation.
package config

// Document is the in-memory tree of a configuration document: a mapping
// from string keys to scalars, sequences ([]any), nested mappings
// (map[string]any), or nil. It decodes directly from YAML via gopkg.in/yaml.v3
// and is the type every component in this module passes around — there is
// no dedicated struct type for "topology"/"vshard" sections at this layer,
// mirroring the original system's schemaless document (spec.md §3).
type Document = map[string]any

// DeepCopy returns an independently owned copy of v, recursing through maps
// and slices. Scalars are copied by value (Go assignment already does
// this); only reference types need explicit recursion.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}

		return out
	default:
		return v
	}
}

// DeepCopyDocument is DeepCopy specialized to the top-level Document type,
// used whenever a caller needs a mutable working copy of the active config
// (spec.md §4.C get_deepcopy).
func DeepCopyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}

	return DeepCopy(doc).(Document)
}

// section looks up doc[name] if name is non-empty, else returns doc itself.
// Used by both GetReadonly and GetDeepCopy to implement the optional
// [section] argument of spec.md §4.C.
func section(doc Document, name string) any {
	if name == "" {
		return doc
	}

	return doc[name]
}
