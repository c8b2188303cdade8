// Package topology implements the clusterwide topology sibling module:
// the servers/replicasets/masters view of a configuration document, and
// the structural checks the 2PC coordinator and validator run against it
// before a patch is allowed to propagate.
package topology

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateURI is returned when two servers share the same URI.
	ErrDuplicateURI = fmt.Errorf("topology: duplicate server uri")
	// ErrUnknownMaster is returned when a replicaset's master is not a known, non-expelled server.
	ErrUnknownMaster = fmt.Errorf("topology: master uuid is not a known server")
	// ErrUUIDReassigned is returned when a server UUID expelled in the previous topology reappears as a live server.
	ErrUUIDReassigned = fmt.Errorf("topology: expelled server uuid reused")
	// ErrUnknownRole is returned when a replicaset enables a role that was never registered.
	ErrUnknownRole = fmt.Errorf("topology: unknown role")
	// ErrNotAMapping is returned when the topology section itself is malformed.
	ErrNotAMapping = fmt.Errorf("topology: section is not well-formed")
)

// Expelled is the tombstone sentinel value stored for a server UUID that has
// been permanently removed from the cluster.
const Expelled = "expelled"

// Server is one entry of topology.servers. A server is either a tombstone
// (IsExpelled == true, everything else zero) or a live record.
type Server struct {
	UUID     uuid.UUID
	URI      string
	Disabled bool

	IsExpelled bool
}

// Replicaset is one entry of topology.replicasets.
type Replicaset struct {
	UUID             uuid.UUID
	Roles            map[string]struct{}
	Master           []uuid.UUID // ordered list; Master[0] is the preferred master
	Weight           float64
	AllRW            bool
	PinnedCount      uint64
	IgnoreDisbalance bool
}

func (r Replicaset) HasRole(name string) bool {
	_, ok := r.Roles[name]
	return ok
}

// Topology is the in-memory, mutable view of topology.servers/replicasets/failover
// that the applier publishes on every successful apply (spec.md §4.E step 3).
// Topology itself is not concurrency-safe; callers serialize access the same
// way the teacher's TopologyController does (single applier worker).
type Topology struct {
	Servers      map[uuid.UUID]Server
	Replicasets  map[uuid.UUID]Replicaset
	Failover     bool
	knownRoles   map[string]struct{}
	activeMaster map[uuid.UUID]uuid.UUID // replicaset uuid -> active master uuid
}

// New returns an empty Topology with no known roles; callers register them
// with AddKnownRole (an empty set makes Validate skip the role check).
func New() *Topology {
	return &Topology{
		Servers:      make(map[uuid.UUID]Server),
		Replicasets:  make(map[uuid.UUID]Replicaset),
		knownRoles:   make(map[string]struct{}),
		activeMaster: make(map[uuid.UUID]uuid.UUID),
	}
}

// AddKnownRole registers a role name as assignable from a replicaset's role set.
func (t *Topology) AddKnownRole(name string) {
	t.knownRoles[name] = struct{}{}
}

// NotDisabled reports whether the given server is a live, non-disabled server.
func (t *Topology) NotDisabled(id uuid.UUID) bool {
	s, ok := t.Servers[id]
	return ok && !s.IsExpelled && !s.Disabled
}

// Set replaces the entire topology in one shot, called by the local applier
// (spec.md §4.E step 3, "publish conf.topology to the topology module").
func (t *Topology) Set(servers map[uuid.UUID]Server, replicasets map[uuid.UUID]Replicaset, failover bool) {
	t.Servers = servers
	t.Replicasets = replicasets
	t.Failover = failover
}

// Get returns references to the current servers/replicasets maps. Callers
// must treat the result as read-only; Topology does not copy them
// defensively.
func (t *Topology) Get() (map[uuid.UUID]Server, map[uuid.UUID]Replicaset) {
	return t.Servers, t.Replicasets
}

// GetActiveMasters recomputes, for every replicaset, the first candidate in
// its ordered master list that is a known, non-expelled, non-disabled
// server, and also stores the result on t.
func (t *Topology) GetActiveMasters() map[uuid.UUID]uuid.UUID {
	active := make(map[uuid.UUID]uuid.UUID, len(t.Replicasets))

	for rsID, rs := range t.Replicasets {
		for _, candidate := range rs.Master {
			if t.NotDisabled(candidate) {
				active[rsID] = candidate
				break
			}
		}
	}

	t.activeMaster = active

	return active
}

// GetReplicationConfig returns the ordered, URI-resolved peer list for the
// replicaset identified by rsID, used by the local applier to reconfigure
// the underlying database runtime (spec.md §4.E step 2).
func (t *Topology) GetReplicationConfig(rsID uuid.UUID) ([]string, error) {
	rs, ok := t.Replicasets[rsID]
	if !ok {
		return nil, fmt.Errorf("%w: replicaset %s", ErrUnknownMaster, rsID)
	}

	uris := make([]string, 0, len(rs.Master))
	for _, memberID := range rs.Master {
		srv, ok := t.Servers[memberID]
		if !ok || srv.IsExpelled {
			continue
		}
		uris = append(uris, srv.URI)
	}

	return uris, nil
}

// VShardShardingEntry is one replicaset's contribution to the derived
// vshard sharding configuration (spec.md §4.E step 4).
type VShardShardingEntry struct {
	ReplicasetUUID uuid.UUID
	Weight         float64
	Master         uuid.UUID
	Replicas       []uuid.UUID
}

// GetVShardShardingConfig derives the sharding map handed to the built-in
// storage/router services: one entry per replicaset that carries a vshard
// role, listing its active master and the UUIDs of the rest of its members.
func (t *Topology) GetVShardShardingConfig() map[uuid.UUID]VShardShardingEntry {
	return t.VShardShardingConfigForMasters(t.GetActiveMasters())
}

// VShardShardingConfigForMasters is GetVShardShardingConfig parameterized on
// an already-computed active-masters map, so a caller with a fresher view of
// who is actually master (e.g. the failover worker folding in membership
// liveness per spec.md §8 S5) can derive a sharding map consistent with that
// view instead of topology's own static, disabled-flag-only notion of it.
func (t *Topology) VShardShardingConfigForMasters(activeMasters map[uuid.UUID]uuid.UUID) map[uuid.UUID]VShardShardingEntry {
	out := make(map[uuid.UUID]VShardShardingEntry)

	for rsID, rs := range t.Replicasets {
		if !rs.HasRole("vshard-storage") && !rs.HasRole("vshard-router") {
			continue
		}

		entry := VShardShardingEntry{
			ReplicasetUUID: rsID,
			Weight:         rs.Weight,
			Master:         activeMasters[rsID],
		}

		for _, m := range rs.Master {
			if m != entry.Master {
				entry.Replicas = append(entry.Replicas, m)
			}
		}

		out[rsID] = entry
	}

	return out
}

// Validate checks structural invariants of newT against (optionally nil)
// oldT: unique URIs, masters that exist and are not expelled, no UUID
// reassignment across the patch, and that every enabled role is known.
// Mirrors spec.md §4.D step 2.
func Validate(newT, oldT *Topology) error {
	if newT == nil {
		return fmt.Errorf("%w: nil topology", ErrNotAMapping)
	}

	if err := checkUniqueURIs(newT); err != nil {
		return err
	}

	if err := checkMasters(newT); err != nil {
		return err
	}

	if err := checkKnownRoles(newT); err != nil {
		return err
	}

	if oldT != nil {
		if err := checkNoUUIDReassignment(newT, oldT); err != nil {
			return err
		}
	}

	return nil
}

func checkUniqueURIs(t *Topology) error {
	seen := make(map[string]uuid.UUID, len(t.Servers))

	// Sort for deterministic error messages across runs (map iteration is random).
	ids := sortedServerIDs(t)

	for _, id := range ids {
		srv := t.Servers[id]
		if srv.IsExpelled || srv.URI == "" {
			continue
		}

		if other, dup := seen[srv.URI]; dup {
			return fmt.Errorf("%w: %s shared by %s and %s", ErrDuplicateURI, srv.URI, other, id)
		}

		seen[srv.URI] = id
	}

	return nil
}

func checkMasters(t *Topology) error {
	ids := sortedReplicasetIDs(t)

	for _, rsID := range ids {
		rs := t.Replicasets[rsID]
		for _, m := range rs.Master {
			srv, ok := t.Servers[m]
			if !ok || srv.IsExpelled {
				return fmt.Errorf("%w: replicaset %s master %s", ErrUnknownMaster, rsID, m)
			}
		}
	}

	return nil
}

func checkKnownRoles(t *Topology) error {
	if len(t.knownRoles) == 0 {
		// No registry wired up yet (e.g. pure structural unit test); skip.
		return nil
	}

	ids := sortedReplicasetIDs(t)

	for _, rsID := range ids {
		for role := range t.Replicasets[rsID].Roles {
			if _, ok := t.knownRoles[role]; !ok {
				return fmt.Errorf("%w: %s (replicaset %s)", ErrUnknownRole, role, rsID)
			}
		}
	}

	return nil
}

// checkNoUUIDReassignment forbids recycling an expelled UUID as a live
// server: the tombstone is permanent once written.
func checkNoUUIDReassignment(newT, oldT *Topology) error {
	for id, oldSrv := range oldT.Servers {
		if !oldSrv.IsExpelled {
			continue
		}

		if newSrv, ok := newT.Servers[id]; ok && !newSrv.IsExpelled {
			return fmt.Errorf("%w: %s was expelled and cannot rejoin", ErrUUIDReassigned, id)
		}
	}

	return nil
}

func sortedServerIDs(t *Topology) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Servers))
	for id := range t.Servers {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	return ids
}

func sortedReplicasetIDs(t *Topology) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Replicasets))
	for id := range t.Replicasets {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	return ids
}

// Expel marks a server as permanently removed, replacing its record with
// the "expelled" tombstone. Supplemental operation grounded on
// original_source/pytest/test_api.py's expell_server fixture.
func (t *Topology) Expel(id uuid.UUID) {
	t.Servers[id] = Server{UUID: id, IsExpelled: true}
}

// FromSection decodes a document's "topology" section (a
// map[string]any, as produced by gopkg.in/yaml.v3 unmarshalling into
// config.Document) into a *Topology. A nil section yields an empty
// Topology. Shared by config.Validator and the local applier so both
// build their in-memory view the same way.
func FromSection(raw any, knownRoles []string) (*Topology, error) {
	t := New()
	for _, name := range knownRoles {
		t.AddKnownRole(name)
	}

	if raw == nil {
		return t, nil
	}

	sec, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotAMapping
	}

	servers, _ := sec["servers"].(map[string]any)
	for key, rawSrv := range servers {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("topology.servers key %q: %w", key, err)
		}

		// spec.md §3: a server entry is either the bare sentinel string
		// "expelled" or a {uri, disabled, ...} record.
		if str, ok := rawSrv.(string); ok {
			if str != Expelled {
				return nil, fmt.Errorf("topology.servers[%s]: unrecognized string sentinel %q", key, str)
			}

			t.Servers[id] = Server{UUID: id, IsExpelled: true}
			continue
		}

		srvMap, ok := rawSrv.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("topology.servers[%s]: %w", key, ErrNotAMapping)
		}

		srv := Server{UUID: id}
		if uri, ok := srvMap["uri"].(string); ok {
			srv.URI = uri
		}
		if disabled, ok := srvMap["disabled"].(bool); ok {
			srv.Disabled = disabled
		}

		t.Servers[id] = srv
	}

	replicasets, _ := sec["replicasets"].(map[string]any)
	for key, rawRS := range replicasets {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("topology.replicasets key %q: %w", key, err)
		}

		rsMap, ok := rawRS.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("topology.replicasets[%s]: %w", key, ErrNotAMapping)
		}

		rs := Replicaset{UUID: id, Roles: make(map[string]struct{})}

		if rawRoles, ok := rsMap["roles"].([]any); ok {
			for _, r := range rawRoles {
				if name, ok := r.(string); ok {
					rs.Roles[name] = struct{}{}
				}
			}
		}

		if rawMaster, ok := rsMap["master"].([]any); ok {
			for _, m := range rawMaster {
				str, ok := m.(string)
				if !ok {
					continue
				}
				mid, err := uuid.Parse(str)
				if err != nil {
					return nil, fmt.Errorf("topology.replicasets[%s].master: %w", key, err)
				}
				rs.Master = append(rs.Master, mid)
			}
		}

		if weight, ok := rsMap["weight"].(float64); ok {
			rs.Weight = weight
		}

		t.Replicasets[id] = rs
	}

	if failover, ok := sec["failover"].(bool); ok {
		t.Failover = failover
	}

	return t, nil
}
