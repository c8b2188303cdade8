// Package membership defines the gossip/cluster-membership contract the
// applier depends on (spec.md "Out of scope: the membership/gossip layer"),
// plus an in-memory reference implementation used by tests. It follows the teacher's provider shape: a small interface with a
// constructor-built struct behind it, the same way providers/static and
// providers/etcd sit behind vshardrouter.TopologyProvider.
package membership

import (
	"sync"

	"github.com/google/uuid"
)

// Member is one entry of the membership table: a peer's advertised URI, its
// instance UUID payload (once known), liveness, and any error payload a peer
// publishes about itself (spec.md §4.E step 7, §4.G).
type Member struct {
	URI     string
	UUID    uuid.UUID
	HasUUID bool
	Alive   bool
	Payload map[string]any
}

// Membership is the contract the Peer Fetcher (§4.G) and Failover Worker
// (§4.H) are written against. A concrete gossip backend (SWIM, serf, etcd
// watch, …) implements this; Static below is the in-process reference used
// by tests.
type Membership interface {
	// Pairs returns every known member, including ourself.
	Pairs() []Member
	// Myself returns our own membership entry.
	Myself() Member
	// SetPayload publishes a key under our own entry, visible to peers on
	// their next Pairs() call (spec.md §4.E step 7: {error: ...} / {ready: true}).
	SetPayload(key string, value any) error
	// Subscribe registers for membership-change notifications (new member,
	// liveness flip, payload change). The returned channel receives an
	// empty struct after a change; changes arriving while one signal is
	// still pending are coalesced into it. Call the returned func to
	// unsubscribe.
	Subscribe() (<-chan struct{}, func())
}

// Static is an in-memory Membership reference implementation: the whole
// table is seeded up front (mirroring providers/static.Provider's seeded
// replicaset map) and mutated directly by tests via Set/SetAlive, which
// both fan out change notifications to subscribers.
type Static struct {
	mu      sync.Mutex
	self    uuid.UUID
	members map[uuid.UUID]Member
	subs    map[int]chan struct{}
	nextSub int
}

// NewStatic returns a Static membership table seeded with members, whose key
// set must include self.
func NewStatic(self uuid.UUID, members map[uuid.UUID]Member) *Static {
	if members == nil {
		members = make(map[uuid.UUID]Member)
	}

	cp := make(map[uuid.UUID]Member, len(members))
	for id, m := range members {
		m.UUID = id
		m.HasUUID = true
		cp[id] = m
	}

	return &Static{self: self, members: cp, subs: make(map[int]chan struct{})}
}

func (s *Static) Pairs() []Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}

	return out
}

func (s *Static) Myself() Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.members[s.self]
}

func (s *Static) SetPayload(key string, value any) error {
	s.mu.Lock()
	m := s.members[s.self]
	if m.Payload == nil {
		m.Payload = make(map[string]any)
	}
	m.Payload[key] = value
	s.members[s.self] = m
	s.mu.Unlock()

	s.notify()

	return nil
}

func (s *Static) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}

	return ch, unsubscribe
}

// Set upserts a member's record (used by tests to simulate a peer joining
// or changing its advertised UUID/URI) and notifies subscribers.
func (s *Static) Set(m Member) {
	s.mu.Lock()
	m.HasUUID = true
	s.members[m.UUID] = m
	s.mu.Unlock()

	s.notify()
}

// SetAlive flips a member's liveness flag and notifies subscribers — used by
// tests to simulate a peer dying or rejoining (which the Failover Worker,
// §4.H, reacts to).
func (s *Static) SetAlive(id uuid.UUID, alive bool) {
	s.mu.Lock()
	m := s.members[id]
	m.Alive = alive
	s.members[id] = m
	s.mu.Unlock()

	s.notify()
}

func (s *Static) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
