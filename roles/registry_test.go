package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubRole struct {
	name         string
	applyErr     error
	applyCalls   int
	initCalls    int
	stopCalls    int
	validateErr  error
	validateArgs map[string]any
}

func (s *stubRole) Name() string { return s.name }

func (s *stubRole) Init(_ context.Context, _ ApplyOpts) error {
	s.initCalls++
	return nil
}

func (s *stubRole) ApplyConfig(_ context.Context, conf map[string]any, _ ApplyOpts) error {
	s.applyCalls++
	s.validateArgs = conf
	return s.applyErr
}

func (s *stubRole) Stop(_ context.Context, _ ApplyOpts) error {
	s.stopCalls++
	return nil
}

func (s *stubRole) ValidateConfig(_ context.Context, _, _ map[string]any) error {
	return s.validateErr
}

type legacyRole struct {
	name string
	err  error
}

func (l *legacyRole) Name() string { return l.name }

func (l *legacyRole) Validate(_ context.Context, _ map[string]any) error {
	return l.err
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubRole{name: "storage-api"}))

	err := reg.Register(&stubRole{name: "storage-api"})
	require.True(t, errors.Is(err, ErrDuplicateRole))

	require.Len(t, reg.Ordered(), 1)
}

func TestRegistry_GetKnownRoles_PrefixedByBuiltins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubRole{name: "custom-role"}))

	known := reg.GetKnownRoles()
	require.Equal(t, []string{VShardStorage, VShardRouter, "custom-role"}, known)
}

func TestRegistry_Ordered_PreservesRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubRole{name: "a"}))
	require.NoError(t, reg.Register(&stubRole{name: "b"}))
	require.NoError(t, reg.Register(&stubRole{name: "c"}))

	var names []string
	for _, r := range reg.Ordered() {
		names = append(names, r.Name())
	}

	require.Equal(t, []string{"a", "b", "c"}, names)
}

func TestRegistry_ValidateAll_AbortsOnFirstFailure(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	failing := &stubRole{name: "failing", validateErr: errors.New("bad section")}
	never := &stubRole{name: "never"}

	require.NoError(t, reg.Register(failing))
	require.NoError(t, reg.Register(never))

	err := reg.ValidateAll(context.Background(), nil, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failing")
}

func TestRegistry_ValidateAll_WarnsOnceForLegacyHook(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&legacyRole{name: "old-style"}))

	var warnings int
	warnf := func(name string) {
		warnings++
		require.Equal(t, "old-style", name)
	}

	require.NoError(t, reg.ValidateAll(context.Background(), nil, nil, warnf))
	require.NoError(t, reg.ValidateAll(context.Background(), nil, nil, warnf))
	require.Equal(t, 1, warnings)
}
