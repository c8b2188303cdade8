// Package static builds a *topology.Topology directly from a fixed,
// compile-time map of servers and replicasets — the same "baked-in
// cluster shape" role the teacher's static.Provider plays for a
// vshard-router TopologyController, minus any network discovery: every
// server and replicaset here is known upfront and never changes. Useful
// for tests and for a first bootstrap hint before membership has anything
// of its own.
package static

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/R-omk/cartridge/topology"
)

// ServerSpec is one static cluster member.
type ServerSpec struct {
	URI      string
	Disabled bool
}

// ReplicasetSpec is one static replicaset: its member UUIDs (ordered,
// preferred master first), role set, and sharding weight.
type ReplicasetSpec struct {
	Roles  []string
	Master []uuid.UUID
	Weight float64
}

// Validate checks that every replicaset's master list is non-empty and
// every referenced server UUID is present in servers — the one structural
// guarantee this package itself can check before handing the result to
// topology.Validate.
func Validate(servers map[uuid.UUID]ServerSpec, replicasets map[uuid.UUID]ReplicasetSpec) error {
	if len(servers) == 0 {
		return fmt.Errorf("servers must not be empty")
	}

	for rsID, spec := range replicasets {
		if len(spec.Master) == 0 {
			return fmt.Errorf("replicaset %s has no master candidates", rsID)
		}

		for _, m := range spec.Master {
			if _, ok := servers[m]; !ok {
				return fmt.Errorf("replicaset %s master %s is not a known server", rsID, m)
			}
		}
	}

	return nil
}

// NewTopology builds a *topology.Topology from servers and replicasets,
// registering knownRoles so topology.Validate's role check has something
// to check against.
func NewTopology(servers map[uuid.UUID]ServerSpec, replicasets map[uuid.UUID]ReplicasetSpec, failover bool, knownRoles []string) (*topology.Topology, error) {
	if err := Validate(servers, replicasets); err != nil {
		return nil, err
	}

	t := topology.New()
	for _, name := range knownRoles {
		t.AddKnownRole(name)
	}

	srvMap := make(map[uuid.UUID]topology.Server, len(servers))
	for id, spec := range servers {
		srvMap[id] = topology.Server{UUID: id, URI: spec.URI, Disabled: spec.Disabled}
	}

	rsMap := make(map[uuid.UUID]topology.Replicaset, len(replicasets))
	for id, spec := range replicasets {
		roles := make(map[string]struct{}, len(spec.Roles))
		for _, r := range spec.Roles {
			roles[r] = struct{}{}
		}

		rsMap[id] = topology.Replicaset{UUID: id, Roles: roles, Master: spec.Master, Weight: spec.Weight}
	}

	t.Set(srvMap, rsMap, failover)

	return t, nil
}
