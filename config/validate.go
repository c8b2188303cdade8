package config

import (
	"context"
	"fmt"

	"github.com/R-omk/cartridge/roles"
	"github.com/R-omk/cartridge/topology"
)

// ErrNotAMapping is returned when confNew itself is nil (spec.md §4.D step
// 1); a malformed vshard section is reported as ErrBadVShardSection.
var ErrNotAMapping = fmt.Errorf("config: expected a mapping")

// ErrBadVShardSection is returned when vshard.bucket_count/bootstrapped fail
// their type/range checks.
var ErrBadVShardSection = fmt.Errorf("config: malformed vshard section")

// Validator runs the full structural + topology + role validation pipeline
// against a proposed document, mirroring spec.md §4.D exactly.
type Validator struct {
	Roles *roles.Registry

	// WarnLegacyValidate is invoked (at most once per role name, per
	// process) the first time a role's deprecated single-argument Validate
	// hook is used instead of ValidateConfig.
	WarnLegacyValidate func(roleName string)
}

// NewValidator returns a Validator dispatching role checks to reg.
func NewValidator(reg *roles.Registry, warnLegacy func(string)) *Validator {
	return &Validator{Roles: reg, WarnLegacyValidate: warnLegacy}
}

// Validate runs the three-step pipeline of spec.md §4.D: structural checks
// on confNew, dispatch to topology.Validate, then dispatch to every
// registered role's ValidateConfig/Validate in registration order,
// aborting on the first failure. confOld may be nil (bootstrap case).
func (v *Validator) Validate(ctx context.Context, confNew, confOld Document) error {
	if confNew == nil {
		return Wrap(KindConfigValidate, "conf_new is nil", ErrNotAMapping)
	}

	if err := checkVShardSection(confNew); err != nil {
		return Wrap(KindConfigValidate, "vshard section", err)
	}

	newTopo, err := buildTopology(confNew, v.Roles)
	if err != nil {
		return Wrap(KindConfigValidate, "parsing topology section", err)
	}

	var oldTopo *topology.Topology
	if confOld != nil {
		oldTopo, err = buildTopology(confOld, v.Roles)
		if err != nil {
			return Wrap(KindConfigValidate, "parsing previous topology section", err)
		}
	}

	if err := topology.Validate(newTopo, oldTopo); err != nil {
		return Wrap(KindConfigValidate, "topology", err)
	}

	if v.Roles != nil {
		if err := v.Roles.ValidateAll(ctx, confNew, confOld, v.WarnLegacyValidate); err != nil {
			return Wrap(KindConfigValidate, "role validation", err)
		}
	}

	return nil
}

// checkVShardSection enforces spec.md §4.D step 1: conf_new.vshard is one of
// the two mandatory top-level sections (spec.md §3) and must be a mapping
// with bucket_count a positive integer and bootstrapped a boolean; none of
// the three is optional.
func checkVShardSection(confNew Document) error {
	raw, ok := confNew["vshard"]
	if !ok {
		return fmt.Errorf("%w: vshard section is required", ErrBadVShardSection)
	}

	vshard, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: vshard is not a mapping", ErrBadVShardSection)
	}

	rawCount, ok := vshard["bucket_count"]
	if !ok {
		return fmt.Errorf("%w: bucket_count is required", ErrBadVShardSection)
	}

	count, isInt := toInt(rawCount)
	if !isInt || count <= 0 {
		return fmt.Errorf("%w: bucket_count must be a positive integer, got %v", ErrBadVShardSection, rawCount)
	}

	rawBootstrapped, ok := vshard["bootstrapped"]
	if !ok {
		return fmt.Errorf("%w: bootstrapped is required", ErrBadVShardSection)
	}

	if _, isBool := rawBootstrapped.(bool); !isBool {
		return fmt.Errorf("%w: bootstrapped must be a boolean, got %v", ErrBadVShardSection, rawBootstrapped)
	}

	return nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}

// buildTopology decodes doc["topology"] into a *topology.Topology, feeding it
// every role name known to reg so checkKnownRoles has something to check
// against.
func buildTopology(doc Document, reg *roles.Registry) (*topology.Topology, error) {
	var known []string
	if reg != nil {
		known = reg.GetKnownRoles()
	}

	return topology.FromSection(doc["topology"], known)
}
