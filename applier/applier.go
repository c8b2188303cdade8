// Package applier implements the clusterwide configuration applier's
// process-wide state (spec.md §4.I) and wires together the Config Store,
// Role Registry, View Layer, Validator, Local Applier, 2PC Coordinator,
// Peer Fetcher and Failover Worker components into one long-lived struct
// per instance.
package applier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/membership"
	"github.com/R-omk/cartridge/roles"
	"github.com/R-omk/cartridge/sharding"
	"github.com/R-omk/cartridge/topology"
	"github.com/R-omk/cartridge/transport"
)

const (
	configFileName  = "config.yml"
	prepareFileName = "config.prepare.yml"
	backupFileName  = "config.backup.yml"
)

// Config is everything New needs to construct an Applier. Only WorkDir and
// MyUUID are required; every Provider field defaults to a no-op
// implementation the same way the teacher defaults Loggerf/Metrics.
type Config struct {
	// WorkDir is the directory holding config.yml and its prepare/backup
	// siblings (spec.md §3).
	WorkDir string
	// MyUUID is this instance's server UUID within topology.servers.
	MyUUID uuid.UUID

	// Roles is the role registry driving steps 4-5 of the local applier.
	// A nil Roles gets an empty registry.
	Roles *roles.Registry

	// Membership is the gossip/cluster-membership collaborator (spec.md
	// "Out of scope"). Required.
	Membership membership.Membership
	// Transport hands out RPC connections to peer URIs (spec.md "Out of
	// scope"). Required.
	Transport transport.Pool

	// Storage and Router are this instance's built-in vshard pseudo-role
	// handles. Either may be nil if this instance never hosts that role.
	Storage sharding.Service
	Router  sharding.Service

	// Replication reconfigures the underlying database runtime's
	// replication set (spec.md §4.E step 2). Defaults to a no-op.
	Replication ReplicationConfigurator

	Loggerf LogfProvider
	Metrics MetricsProvider
}

// ErrMembershipRequired and ErrTransportRequired are returned by New when a
// required collaborator is missing.
var (
	ErrMembershipRequired = fmt.Errorf("applier: Config.Membership is required")
	ErrTransportRequired  = fmt.Errorf("applier: Config.Transport is required")
	ErrWorkDirRequired    = fmt.Errorf("applier: Config.WorkDir is required")
)

func prepareCfg(cfg Config) (Config, error) {
	if err := validateCfg(cfg); err != nil {
		return Config{}, err
	}

	if cfg.Roles == nil {
		cfg.Roles = roles.NewRegistry()
	}

	if cfg.Loggerf == nil {
		cfg.Loggerf = emptyLogfProvider
	}

	if cfg.Metrics == nil {
		cfg.Metrics = emptyMetricsProvider
	}

	if cfg.Replication == nil {
		cfg.Replication = emptyReplicationConfigurator
	}

	return cfg, nil
}

func validateCfg(cfg Config) error {
	if cfg.WorkDir == "" {
		return ErrWorkDirRequired
	}

	if cfg.Membership == nil {
		return ErrMembershipRequired
	}

	if cfg.Transport == nil {
		return ErrTransportRequired
	}

	return nil
}

// Applier is the single process-wide instance every public operation is a
// method on (spec.md §4.I: "Single active config, workdir, registered
// roles, locks, worker handles").
type Applier struct {
	cfg   Config
	store *config.Store
	vldtr *config.Validator

	mu         sync.RWMutex
	activeConf config.Document // nil until the first local apply installs one
	topo       *topology.Topology

	// serviceRegistry tracks which role names (plus the two built-in
	// pseudo-roles) are currently installed for this instance's
	// replicaset, per spec.md §4.E steps 4-5. serviceMu guards it because
	// both the apply worker and the failover worker write to it; spec.md
	// §5 only guarantees they don't race in the original cooperative
	// scheduler, which Go's preemptive goroutines do not give us for free.
	serviceMu       sync.Mutex
	serviceRegistry map[string]struct{}

	lock clusterwideLock

	applyCh    chan applyRequest
	workerDead atomic.Bool

	failoverMu sync.Mutex
	failover   *failoverWorker
}

// New constructs an Applier, starts its single-slot apply worker, and
// loads config.yml from cfg.WorkDir if one is already present (the
// "warm restart" case; a missing file leaves the instance pre-bootstrap,
// to be filled in by Bootstrap or a future patch_clusterwide).
func New(ctx context.Context, cfg Config) (*Applier, error) {
	cfg, err := prepareCfg(cfg)
	if err != nil {
		return nil, err
	}

	a := &Applier{
		cfg:             cfg,
		store:           config.NewStore(),
		serviceRegistry: make(map[string]struct{}),
		applyCh:         make(chan applyRequest, 1),
	}
	a.vldtr = config.NewValidator(cfg.Roles, a.warnLegacyValidate)

	go a.runWorker()

	if config.Exists(a.activePath()) {
		doc, err := a.store.Load(a.activePath())
		if err != nil {
			return nil, err
		}

		if err := a.submitToWorker(ctx, doc); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *Applier) activePath() string  { return a.workPath(configFileName) }
func (a *Applier) preparePath() string { return a.workPath(prepareFileName) }
func (a *Applier) backupPath() string  { return a.workPath(backupFileName) }

func (a *Applier) workPath(name string) string {
	return a.cfg.WorkDir + "/" + name
}

func (a *Applier) warnLegacyValidate(roleName string) {
	a.cfg.Loggerf.Warnf(context.Background(),
		"role %s uses the deprecated single-argument Validate hook; implement ValidateConfig instead", roleName)
}

// GetReadonly returns a read-only View over the active config, or over its
// [section] if section is non-empty (spec.md §4.C).
func (a *Applier) GetReadonly(sectionName string) config.View {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return config.GetReadonly(a.activeConf, sectionName)
}

// GetDeepcopy returns an independently owned copy of the active config, or
// of its [section] if section is non-empty (spec.md §4.C).
func (a *Applier) GetDeepcopy(sectionName string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return config.GetDeepcopy(a.activeConf, sectionName)
}

// Topology returns the topology snapshot published by the most recent local
// apply whose topology section parsed (step 3 runs even if a later step
// fails). Callers must treat the result as read-only.
func (a *Applier) Topology() *topology.Topology {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.topo
}
