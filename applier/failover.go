package applier

import (
	"context"

	"github.com/google/uuid"

	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/roles"
	"github.com/R-omk/cartridge/sharding"
	"github.com/R-omk/cartridge/topology"
)

// failoverWorker is the handle to a running failover loop: cancel stops it
// and unsubscribes from membership; done is closed once the goroutine has
// actually returned, so reconcileFailoverWorker can block a restart until
// the previous one is fully torn down.
type failoverWorker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// reconcileFailoverWorker starts or stops the failover worker to match
// shouldRun, the state machine of spec.md §4.H ("idle -> running -> idle,
// any state -> stopped on cancel"). It is the local applier's step 6,
// called synchronously as the last step of localApply so the failover
// worker can never observe a partially-applied config (spec.md §5: "the
// applier synchronously starts/stops the failover worker as its final
// step").
func (a *Applier) reconcileFailoverWorker(shouldRun bool) {
	a.failoverMu.Lock()
	defer a.failoverMu.Unlock()

	running := a.failover != nil

	if shouldRun == running {
		return
	}

	if !shouldRun {
		a.failover.cancel()
		<-a.failover.done
		a.failover = nil
		a.cfg.Metrics.FailoverRunning(false)

		return
	}

	ch, unsubscribe := a.cfg.Membership.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	fw := &failoverWorker{cancel: cancel, done: make(chan struct{})}
	a.failover = fw

	go a.runFailoverWorker(ctx, fw, ch, unsubscribe)
	a.cfg.Metrics.FailoverRunning(true)
}

// runFailoverWorker is the body of the long-lived goroutine: wait for a
// membership change, run one iteration, repeat; exit and unsubscribe on
// cancellation.
func (a *Applier) runFailoverWorker(ctx context.Context, fw *failoverWorker, changed <-chan struct{}, unsubscribe func()) {
	defer close(fw.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			a.failoverIteration(ctx)
		}
	}
}

// failoverIteration runs the four steps of spec.md §4.H once: recompute
// is_master, reconfigure sharding if it changed, and re-run every installed
// role's validate/apply pair. Every error is logged; none aborts the loop.
func (a *Applier) failoverIteration(ctx context.Context) {
	a.mu.RLock()
	active := a.activeConf
	topo := a.topo
	a.mu.RUnlock()

	if active == nil || topo == nil {
		return
	}

	// doc is an independent clone of the active config: role hooks below
	// must never be able to reach a.activeConf through a shared map/slice
	// reference (spec.md §4.C, §8 invariant 5).
	doc := config.DeepCopyDocument(active)

	activeMasters := a.activeMastersWithMembership(topo)
	_, myReplicaset, haveReplicaset := findMyReplicaset(topo, a.cfg.MyUUID)

	if !haveReplicaset {
		return
	}

	isMaster := activeMasters[myReplicaset.UUID] == a.cfg.MyUUID
	opts := roles.ApplyOpts{IsMaster: isMaster}

	if myReplicaset.HasRole(roles.VShardStorage) || myReplicaset.HasRole(roles.VShardRouter) {
		a.reconfigureShardingIfChanged(ctx, doc, topo, activeMasters)
	}

	a.serviceMu.Lock()
	installed := make([]string, 0, len(a.serviceRegistry))
	for name := range a.serviceRegistry {
		installed = append(installed, name)
	}
	a.serviceMu.Unlock()

	for _, role := range a.cfg.Roles.Ordered() {
		name := role.Name()
		if !containsName(installed, name) {
			continue
		}

		if validator, ok := role.(roles.ConfigValidator); ok {
			if err := validator.ValidateConfig(ctx, doc, doc); err != nil {
				a.cfg.Loggerf.Errorf(ctx, "failover: role %s: validate_config: %v", name, err)
				continue
			}
		}

		if applier, ok := role.(roles.Applier); ok {
			if err := applier.ApplyConfig(ctx, doc, opts); err != nil {
				a.cfg.Loggerf.Errorf(ctx, "failover: role %s: apply_config: %v", name, err)
			}
		}
	}
}

// activeMastersWithMembership recomputes each replicaset's active master the
// way spec.md §8 S5 needs ("membership reports the current master down"):
// the same ordered-candidate walk as topology.GetActiveMasters, but a
// candidate current membership reports as not alive is skipped exactly like
// one marked disabled in the static topology, so a peer dying without a
// config change still causes the failover worker to pick the next candidate.
func (a *Applier) activeMastersWithMembership(topo *topology.Topology) map[uuid.UUID]uuid.UUID {
	aliveByUUID := make(map[uuid.UUID]bool)
	for _, m := range a.cfg.Membership.Pairs() {
		if m.HasUUID {
			aliveByUUID[m.UUID] = m.Alive
		}
	}

	active := make(map[uuid.UUID]uuid.UUID, len(topo.Replicasets))

	for rsID, rs := range topo.Replicasets {
		for _, candidate := range rs.Master {
			if !topo.NotDisabled(candidate) {
				continue
			}

			if alive, known := aliveByUUID[candidate]; known && !alive {
				continue
			}

			active[rsID] = candidate
			break
		}
	}

	return active
}

// reconfigureShardingIfChanged implements spec.md §4.H step 3: compute the
// sharding config topology would derive right now and, only if it differs
// from what is currently installed, push it to storage then router.
// activeMasters is the membership-aware view computed by
// activeMastersWithMembership, not topo's own static one, so a master flip
// driven purely by a membership event (spec.md §8 S5) is actually reflected
// in the sharding map pushed to storage/router.
func (a *Applier) reconfigureShardingIfChanged(ctx context.Context, doc map[string]any, topo *topology.Topology, activeMasters map[uuid.UUID]uuid.UUID) {
	want := sharding.Cfg{
		BucketCount: vshardBucketCount(doc),
		Replicasets: topo.VShardShardingConfigForMasters(activeMasters),
	}

	if a.cfg.Storage != nil {
		if have, ok := a.cfg.Storage.CurrentCfg(); !ok || !have.Equal(want) {
			if err := a.cfg.Storage.Configure(ctx, want); err != nil {
				a.cfg.Loggerf.Errorf(ctx, "failover: reconfigure storage: %v", err)
			}
		}
	}

	if a.cfg.Router != nil {
		if have, ok := a.cfg.Router.CurrentCfg(); !ok || !have.Equal(want) {
			if err := a.cfg.Router.Configure(ctx, want); err != nil {
				a.cfg.Loggerf.Errorf(ctx, "failover: reconfigure router: %v", err)
			}
		}
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}

	return false
}

