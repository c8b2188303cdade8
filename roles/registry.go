// Package roles implements the clusterwide applier's role registry
// (spec.md §4.B): the ordered list of pluggable role modules and their
// lifecycle hooks, plus the two always-present vshard pseudo-roles.
package roles

import (
	"context"
	"fmt"
	"sync"
)

// VShardStorage and VShardRouter are the built-in pseudo-roles. They are
// always present and applied before any user role (spec.md §4.B).
const (
	VShardStorage = "vshard-storage"
	VShardRouter  = "vshard-router"
)

// ErrDuplicateRole is returned by Register when a role name is already taken.
var ErrDuplicateRole = fmt.Errorf("roles: role already registered")

// ApplyOpts is passed to Init/ApplyConfig/Stop, carrying the one piece of
// derived state a role actually needs to make a decision.
type ApplyOpts struct {
	IsMaster bool
}

// Role is the optional-method interface a role module may implement. Any
// subset of the four methods may be present; a role struct that implements
// none of them is legal (spec.md "Design Notes": "use an interface with
// four optional methods; absence is a no-op"), the same dependency-injected
// optional-provider shape the teacher uses for LogfProvider/MetricsProvider.
type Role interface {
	// Name returns the role's registered name.
	Name() string
}

// ConfigValidator is implemented by roles that need to check a proposed
// document before it is allowed to apply.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, confNew, confOld map[string]any) error
}

// LegacyValidator is the deprecated single-argument validation hook. Roles
// implementing only this get a once-per-process deprecation warning logged
// by the validator (spec.md §4.D step 3 / "Design Notes").
type LegacyValidator interface {
	Validate(ctx context.Context, confNew map[string]any) error
}

// Initializer is implemented by roles that need one-time setup the first
// time they're enabled for a replicaset.
type Initializer interface {
	Init(ctx context.Context, opts ApplyOpts) error
}

// Applier is implemented by roles that configure themselves from the active
// document on every apply (initial and subsequent).
type Applier interface {
	ApplyConfig(ctx context.Context, conf map[string]any, opts ApplyOpts) error
}

// Stopper is implemented by roles that need to release resources when
// disabled for a replicaset.
type Stopper interface {
	Stop(ctx context.Context, opts ApplyOpts) error
}

// entry bundles a registered role with the state needed to emit the
// legacy-hook deprecation warning exactly once.
type entry struct {
	role           Role
	warnedLegacyMu sync.Once
}

// Registry holds the ordered list of registered roles and their lifecycle
// hooks. The apply order is the registration order, per spec.md §4.B.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry returns an empty role registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds role to the registry under role.Name(). Fails with
// ErrDuplicateRole if that name is already taken (spec.md: "A role name is
// registered at most once, globally, for the life of the process").
func (reg *Registry) Register(role Role) error {
	name := role.Name()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, name)
	}

	reg.entries[name] = &entry{role: role}
	reg.order = append(reg.order, name)

	return nil
}

// GetKnownRoles returns the ordered list of role names, prefixed by the two
// built-in vshard pseudo-roles (spec.md §4.B).
func (reg *Registry) GetKnownRoles() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]string, 0, len(reg.order)+2)
	out = append(out, VShardStorage, VShardRouter)
	out = append(out, reg.order...)

	return out
}

// Ordered returns the registered user roles (not including the two
// built-ins, which are handled directly by the local applier) in
// registration order.
func (reg *Registry) Ordered() []Role {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]Role, 0, len(reg.order))
	for _, name := range reg.order {
		out = append(out, reg.entries[name].role)
	}

	return out
}

// ValidateAll dispatches ValidateConfig (or the deprecated Validate, with a
// once-per-role warning) to every registered role in order, aborting on the
// first failure, per spec.md §4.D step 3.
func (reg *Registry) ValidateAll(ctx context.Context, confNew, confOld map[string]any, warnf func(name string)) error {
	reg.mu.RLock()
	order := append([]string(nil), reg.order...)
	reg.mu.RUnlock()

	for _, name := range order {
		reg.mu.RLock()
		e := reg.entries[name]
		reg.mu.RUnlock()

		switch v := e.role.(type) {
		case ConfigValidator:
			if err := v.ValidateConfig(ctx, confNew, confOld); err != nil {
				return fmt.Errorf("role %s: %w", name, err)
			}
		case LegacyValidator:
			e.warnedLegacyMu.Do(func() {
				if warnf != nil {
					warnf(name)
				}
			})

			if err := v.Validate(ctx, confNew); err != nil {
				return fmt.Errorf("role %s: %w", name, err)
			}
		}
	}

	return nil
}
