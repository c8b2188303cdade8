package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_Load_InlinesFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"), []byte("PEM DATA"), 0o644))

	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tls:\n  cert:\n    __file: cert.pem\n"), 0o644))

	doc, err := NewStore().Load(cfgPath)
	require.NoError(t, err)

	tls, ok := doc["tls"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "PEM DATA", tls["cert"])
}

func TestStore_Load_MissingFile(t *testing.T) {
	_, err := NewStore().Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, KindConfigLoad, cerr.Kind)
}

func TestStore_Load_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := NewStore().Load(path)
	require.Error(t, err)
}

func TestStore_WriteExclusive_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prepare.yml")

	s := NewStore()
	require.NoError(t, s.WriteExclusive(path, Document{"a": 1}))
	require.Error(t, s.WriteExclusive(path, Document{"a": 2}))
}

func TestStore_Promote_HardlinksBackupAndRenames(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "config.yml")
	prepare := filepath.Join(dir, "config.prepare.yml")
	backup := filepath.Join(dir, "config.backup.yml")

	require.NoError(t, os.WriteFile(active, []byte("old: true\n"), 0o644))
	require.NoError(t, os.WriteFile(prepare, []byte("new: true\n"), 0o644))

	s := NewStore()
	require.NoError(t, s.Promote(prepare, active, backup, nil))

	activeData, err := os.ReadFile(active)
	require.NoError(t, err)
	require.Equal(t, "new: true\n", string(activeData))

	backupData, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.Equal(t, "old: true\n", string(backupData))

	require.False(t, Exists(prepare))
}

func TestStore_Promote_CallsOnLinkFailWhenNoActiveYet(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "config.yml")
	prepare := filepath.Join(dir, "config.prepare.yml")
	backup := filepath.Join(dir, "config.backup.yml")

	require.NoError(t, os.WriteFile(prepare, []byte("new: true\n"), 0o644))

	var linkErr error
	s := NewStore()
	require.NoError(t, s.Promote(prepare, active, backup, func(err error) { linkErr = err }))
	require.Error(t, linkErr)
}

func TestStore_Unlink_IsIdempotent(t *testing.T) {
	s := NewStore()
	path := filepath.Join(t.TempDir(), "nonexistent.yml")
	require.NoError(t, s.Unlink(path))
	require.NoError(t, s.Unlink(path))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.yml")
	require.False(t, Exists(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.True(t, Exists(path))
}
