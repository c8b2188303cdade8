package config

import "gopkg.in/yaml.v3"

// PatchOp distinguishes "leave unchanged" (the key is absent) from
// "remove this key" (the key was present with an explicit null), per
// spec.md §6's null-sentinel patch encoding.
type PatchOp int

const (
	// OpSet means the key is present in the patch with a concrete value.
	OpSet PatchOp = iota
	// OpRemove means the key was present with an explicit null, and the
	// corresponding top-level key must be deleted from the document.
	OpRemove
)

// PatchValue is one top-level entry of a Patch.
type PatchValue struct {
	Op    PatchOp
	Value any
}

// Patch is a proposed set of top-level document changes: a sum type over
// {Unset, Remove, Set(value)} represented as a map, where an absent key
// means Unset (spec.md "Design Notes").
type Patch map[string]PatchValue

// ParsePatchYAML decodes data into a Patch, distinguishing an explicit
// `key: null` (OpRemove) from any other scalar/sequence/mapping value
// (OpSet). Keys absent from data are simply absent from the returned Patch.
func ParsePatchYAML(data []byte) (Patch, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, Wrap(KindConfigValidate, "parsing patch", err)
	}

	if len(root.Content) == 0 {
		return Patch{}, nil
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, Wrap(KindConfigValidate, "patch document root is not a mapping", nil)
	}

	patch := make(Patch, len(mapping.Content)/2)

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]

		if valNode.Tag == "!!null" {
			patch[keyNode.Value] = PatchValue{Op: OpRemove}
			continue
		}

		var decoded any
		if err := valNode.Decode(&decoded); err != nil {
			return nil, Wrap(KindConfigValidate, "decoding patch value for "+keyNode.Value, err)
		}

		patch[keyNode.Value] = PatchValue{Op: OpSet, Value: decoded}
	}

	return patch, nil
}

// Merge applies patch onto a deep copy of base: OpSet entries replace the
// top-level key, OpRemove entries delete it, and keys absent from patch are
// left untouched (spec.md §4.F step 3).
func Merge(base Document, patch Patch) Document {
	out := DeepCopyDocument(base)
	if out == nil {
		out = Document{}
	}

	for key, pv := range patch {
		switch pv.Op {
		case OpRemove:
			delete(out, key)
		case OpSet:
			out[key] = DeepCopy(pv.Value)
		}
	}

	return out
}
