package applier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/roles"
	"github.com/R-omk/cartridge/sharding"
	"github.com/R-omk/cartridge/topology"
)

// applyRequest is one item on the single-slot worker channel.
type applyRequest struct {
	ctx    context.Context
	doc    config.Document
	result chan error
}

// runWorker is the dedicated goroutine of spec.md §4.E's closing paragraph:
// it consumes apply requests from a single-slot channel, running localApply
// for each in turn, so no two local applies ever run concurrently.
func (a *Applier) runWorker() {
	for req := range a.applyCh {
		req.result <- a.localApply(req.ctx, req.doc)
	}

	a.workerDead.Store(true)
}

// Apply is the public entry point for installing doc as the active config
// outside of a 2PC commit: it persists doc to config.yml, then waits for
// the worker to pick it up (spec.md §4.E closing paragraph). Used by
// Bootstrap/fetchFromMembership and by any first-time local bootstrap.
func (a *Applier) Apply(ctx context.Context, doc config.Document) error {
	if err := writeActive(a.store, a.activePath(), doc); err != nil {
		return err
	}

	return a.submitToWorker(ctx, doc)
}

// writeActive overwrites config.yml directly (not exclusively): this path
// is only reached once doc is already known-valid and intended to become
// active immediately, unlike the 2PC prepare file which really is a lock.
func writeActive(store *config.Store, path string, doc config.Document) error {
	_ = store.Unlink(path)
	return store.WriteExclusive(path, doc)
}

// submitToWorker hands doc to the worker and blocks for the result. Fails
// fast with a KindConfigApply error if the worker has already died.
func (a *Applier) submitToWorker(ctx context.Context, doc config.Document) error {
	if a.workerDead.Load() {
		return config.Wrap(config.KindConfigApply, "apply worker is dead", nil)
	}

	result := make(chan error, 1)
	req := applyRequest{ctx: ctx, doc: doc, result: result}

	select {
	case a.applyCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// localApply runs the 7-step pipeline of spec.md §4.E, in order, on the
// worker goroutine.
func (a *Applier) localApply(ctx context.Context, doc config.Document) (firstErr error) {
	start := time.Now()

	defer func() {
		a.cfg.Metrics.ApplyDuration(time.Since(start), firstErr == nil)

		if firstErr != nil {
			_ = a.cfg.Membership.SetPayload("error", "Config apply failed")
		} else {
			_ = a.cfg.Membership.SetPayload("ready", true)
		}
	}()

	// Step 1: freeze and install as active. The stored copy and the copy
	// handed to role hooks below are deep, independent clones of doc so
	// that neither the caller nor a misbehaving role can reach the live
	// active config through a shared map/slice reference (spec.md §4.C,
	// §8 invariant 5: writes at any depth must never touch the active
	// document).
	activeCopy := config.DeepCopyDocument(doc)

	a.mu.Lock()
	a.activeConf = activeCopy
	a.mu.Unlock()

	rolesDoc := config.DeepCopyDocument(doc)

	knownRoles := a.cfg.Roles.GetKnownRoles()

	topo, err := topology.FromSection(rolesDoc["topology"], knownRoles)
	if err != nil {
		return config.Wrap(config.KindConfigApply, "parsing topology for local apply", err)
	}

	activeMasters := topo.GetActiveMasters()

	myReplicasetID, myReplicaset, haveReplicaset := findMyReplicaset(topo, a.cfg.MyUUID)

	// Step 2: replication. Errors are logged but never abort the pipeline.
	if haveReplicaset {
		uris, err := topo.GetReplicationConfig(myReplicasetID)
		if err != nil {
			a.cfg.Loggerf.Errorf(ctx, "computing replication config: %v", err)
		} else if err := a.cfg.Replication.Reconfigure(ctx, uris); err != nil {
			a.cfg.Loggerf.Errorf(ctx, "reconfiguring replication: %v", err)
		}
	}

	// Step 3: topology handoff.
	a.mu.Lock()
	a.topo = topo
	a.mu.Unlock()

	isMaster := haveReplicaset && activeMasters[myReplicasetID] == a.cfg.MyUUID
	opts := roles.ApplyOpts{IsMaster: isMaster}

	// Step 4: built-in sharding.
	if haveReplicaset {
		if err := a.applyBuiltinSharding(ctx, rolesDoc, topo, myReplicaset); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Step 5: user roles, in registration order.
	for _, role := range a.cfg.Roles.Ordered() {
		name := role.Name()
		enabled := haveReplicaset && myReplicaset.HasRole(name)

		a.serviceMu.Lock()
		_, installed := a.serviceRegistry[name]
		a.serviceMu.Unlock()

		if enabled && !installed {
			if initializer, ok := role.(roles.Initializer); ok {
				if err := initializer.Init(ctx, opts); err != nil {
					a.cfg.Loggerf.Errorf(ctx, "role %s: init: %v", name, err)
					if firstErr == nil {
						firstErr = err
					}

					continue
				}
			}
		}

		if enabled {
			a.serviceMu.Lock()
			a.serviceRegistry[name] = struct{}{}
			a.serviceMu.Unlock()

			if applier, ok := role.(roles.Applier); ok {
				if err := applier.ApplyConfig(ctx, rolesDoc, opts); err != nil {
					a.cfg.Loggerf.Errorf(ctx, "role %s: apply_config: %v", name, err)
					if firstErr == nil {
						firstErr = err
					}
				}
			}

			continue
		}

		if installed {
			if stopper, ok := role.(roles.Stopper); ok {
				if err := stopper.Stop(ctx, opts); err != nil {
					a.cfg.Loggerf.Errorf(ctx, "role %s: stop: %v", name, err)
				}
			}

			a.serviceMu.Lock()
			delete(a.serviceRegistry, name)
			a.serviceMu.Unlock()
		}
	}

	// Step 6: failover worker.
	vshardRoleEnabled := haveReplicaset &&
		(myReplicaset.HasRole(roles.VShardStorage) || myReplicaset.HasRole(roles.VShardRouter))
	a.reconcileFailoverWorker(topo.Failover && vshardRoleEnabled)

	return firstErr
}

// findMyReplicaset returns the replicaset that lists myUUID among its
// members, if any.
func findMyReplicaset(t *topology.Topology, myUUID uuid.UUID) (rsID uuid.UUID, rs topology.Replicaset, found bool) {
	for id, candidate := range t.Replicasets {
		for _, member := range candidate.Master {
			if member == myUUID {
				return id, candidate, true
			}
		}
	}

	return uuid.UUID{}, topology.Replicaset{}, false
}

func (a *Applier) applyBuiltinSharding(ctx context.Context, doc config.Document, topo *topology.Topology, myReplicaset topology.Replicaset) error {
	bucketCount := vshardBucketCount(doc)
	shardingCfg := sharding.Cfg{BucketCount: bucketCount, Replicasets: topo.GetVShardShardingConfig()}

	var firstErr error

	if myReplicaset.HasRole(roles.VShardStorage) && a.cfg.Storage != nil {
		if err := a.cfg.Storage.Configure(ctx, shardingCfg); err != nil {
			a.cfg.Loggerf.Errorf(ctx, "vshard-storage: configure: %v", err)
			firstErr = err
		} else {
			a.serviceMu.Lock()
			a.serviceRegistry[roles.VShardStorage] = struct{}{}
			a.serviceMu.Unlock()
		}
	}

	if myReplicaset.HasRole(roles.VShardRouter) && a.cfg.Router != nil {
		if err := a.cfg.Router.Configure(ctx, shardingCfg); err != nil {
			a.cfg.Loggerf.Errorf(ctx, "vshard-router: configure: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			a.serviceMu.Lock()
			a.serviceRegistry[roles.VShardRouter] = struct{}{}
			a.serviceMu.Unlock()
		}
	}

	return firstErr
}

func vshardBucketCount(doc config.Document) uint64 {
	vshard, ok := doc["vshard"].(map[string]any)
	if !ok {
		return 0
	}

	switch v := vshard["bucket_count"].(type) {
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case uint64:
		return v
	case float64:
		return uint64(v)
	default:
		return 0
	}
}
