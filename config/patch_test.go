package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePatchYAML_DistinguishesNullFromAbsent(t *testing.T) {
	patch, err := ParsePatchYAML([]byte("topology:\n  servers: {}\nremoved_section: null\n"))
	require.NoError(t, err)

	require.Contains(t, patch, "topology")
	require.Equal(t, OpSet, patch["topology"].Op)

	require.Contains(t, patch, "removed_section")
	require.Equal(t, OpRemove, patch["removed_section"].Op)

	_, present := patch["untouched"]
	require.False(t, present)
}

func TestParsePatchYAML_RejectsNonMappingRoot(t *testing.T) {
	_, err := ParsePatchYAML([]byte("- just\n- a\n- list\n"))
	require.Error(t, err)
}

func TestMerge_SetReplacesRemoveDeletesAbsentLeavesUnchanged(t *testing.T) {
	base := Document{
		"a": 1,
		"b": map[string]any{"nested": true},
		"c": "stays",
	}

	patch := Patch{
		"a": {Op: OpSet, Value: 2},
		"b": {Op: OpRemove},
	}

	out := Merge(base, patch)

	require.Equal(t, 2, out["a"])
	_, hasB := out["b"]
	require.False(t, hasB)
	require.Equal(t, "stays", out["c"])

	// base must be untouched.
	require.Equal(t, 1, base["a"])
	_, stillHasB := base["b"]
	require.True(t, stillHasB)
}
