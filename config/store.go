package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileMarkerKey is the magic mapping key that, when it is a node's sole
// key, marks that node for replacement by the referenced file's raw bytes
// (spec.md §3 "External file inlining").
const fileMarkerKey = "__file"

// Store implements the Config Store component (spec.md §4.A): loading and
// persisting the on-disk config file and its prepare/backup siblings.
// It holds no state: Load resolves __file references relative to the
// directory of the file it is loading.
type Store struct{}

// NewStore returns a Store. Store carries no required state of its own —
// every operation takes an explicit path, mirroring the teacher's
// free-function style for pool/connection setup rather than a heavyweight
// constructor.
func NewStore() *Store {
	return &Store{}
}

// Load reads path, parses it as YAML, and recursively inlines every
// {__file: "relative/path"} node with that file's raw bytes. Fails with
// KindConfigLoad on a missing file, an empty file, a parse error, or an
// inlined-file read error (spec.md §4.A).
func (s *Store) Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(KindConfigLoad, fmt.Sprintf("reading %s", path), err)
	}

	if len(raw) == 0 {
		return nil, Wrap(KindConfigLoad, fmt.Sprintf("%s is empty", path), nil)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, Wrap(KindConfigLoad, fmt.Sprintf("parsing %s", path), err)
	}

	dir := filepath.Dir(path)

	inlined, err := inlineFiles(doc, dir)
	if err != nil {
		return nil, Wrap(KindConfigLoad, fmt.Sprintf("inlining __file references in %s", path), err)
	}

	return inlined.(Document), nil
}

// inlineFiles recursively walks v, replacing any mapping node whose sole
// key is __file with the referenced file's raw contents.
func inlineFiles(v any, baseDir string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := soleFileRef(t); ok {
			data, err := os.ReadFile(filepath.Join(baseDir, ref))
			if err != nil {
				return nil, fmt.Errorf("reading inlined file %s: %w", ref, err)
			}

			return string(data), nil
		}

		out := make(map[string]any, len(t))

		for k, val := range t {
			replaced, err := inlineFiles(val, baseDir)
			if err != nil {
				return nil, err
			}

			out[k] = replaced
		}

		return out, nil
	case []any:
		out := make([]any, len(t))

		for i, val := range t {
			replaced, err := inlineFiles(val, baseDir)
			if err != nil {
				return nil, err
			}

			out[i] = replaced
		}

		return out, nil
	default:
		return v, nil
	}
}

// soleFileRef reports whether m has exactly one key, __file, and returns
// its string value.
func soleFileRef(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}

	v, ok := m[fileMarkerKey]
	if !ok {
		return "", false
	}

	ref, ok := v.(string)

	return ref, ok
}

// WriteExclusive marshals doc as YAML and creates path with O_CREAT|O_EXCL,
// failing if it already exists. Used for the 2PC prepare file, which
// doubles as the cluster-visible per-participant lock (spec.md §5).
func (s *Store) WriteExclusive(path string, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return Wrap(KindConfigApply, "marshaling document", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Wrap(KindConfigApply, fmt.Sprintf("creating %s exclusively", path), err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return Wrap(KindConfigApply, fmt.Sprintf("writing %s", path), err)
	}

	return nil
}

// Promote moves preparePath into activePath atomically, after best-effort
// hard-linking the previous active file to backupPath. onLinkFail, if
// non-nil, is invoked with the hard-link error so the caller can log it;
// a failed hard link never aborts the promotion. A failed rename is fatal
// (spec.md §4.A).
func (s *Store) Promote(preparePath, activePath, backupPath string, onLinkFail func(error)) error {
	_ = os.Remove(backupPath)

	if err := os.Link(activePath, backupPath); err != nil && onLinkFail != nil {
		onLinkFail(err)
	}

	if err := os.Rename(preparePath, activePath); err != nil {
		return Wrap(KindConfigApply, fmt.Sprintf("renaming %s to %s", preparePath, activePath), err)
	}

	return nil
}

// Unlink removes path, succeeding silently if it is already gone (spec.md
// §4.A: "idempotent").
func (s *Store) Unlink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return Wrap(KindConfigApply, fmt.Sprintf("unlinking %s", path), err)
	}

	return nil
}

// Exists reports whether path currently exists on disk, used by callers
// that need to tell {}, {active}, {active, prepare}, ... apart (spec.md §3).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
