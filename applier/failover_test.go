package applier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/R-omk/cartridge/applier"
	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/membership"
	"github.com/R-omk/cartridge/roles"
	"github.com/R-omk/cartridge/sharding"
	"github.com/R-omk/cartridge/transport"
)

// captureRole is a minimal roles.Role that records the IsMaster flag last
// seen through ApplyConfig, the way a real user role would use it to decide
// whether to accept writes.
type captureRole struct {
	mu         sync.Mutex
	applyCount int
	isMaster   bool
}

func (r *captureRole) Name() string { return "capture" }

func (r *captureRole) ApplyConfig(ctx context.Context, conf map[string]any, opts roles.ApplyOpts) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.applyCount++
	r.isMaster = opts.IsMaster

	return nil
}

func (r *captureRole) snapshot() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.applyCount, r.isMaster
}

// TestFailoverWorker_MasterDownFlipsIsMasterAndReconfiguresSharding exercises
// spec.md §8 S5: with failover on and vshard-storage enabled, membership
// reporting the current master down must wake the failover worker, cause
// get_active_masters to pick the next candidate, push the new sharding map
// to storage, and flip is_master for every installed role.
func TestFailoverWorker_MasterDownFlipsIsMasterAndReconfiguresSharding(t *testing.T) {
	primaryID, standbyID, rsID := uuid.New(), uuid.New(), uuid.New()

	topo := map[string]any{
		"servers": map[string]any{
			primaryID.String(): map[string]any{"uri": "inproc://primary"},
			standbyID.String(): map[string]any{"uri": "inproc://standby"},
		},
		"replicasets": map[string]any{
			rsID.String(): map[string]any{
				"roles":  []any{"vshard-storage", "capture"},
				"master": []any{primaryID.String(), standbyID.String()},
				"weight": 1.5,
			},
		},
		"failover": true,
	}

	doc := config.Document{
		"topology": topo,
		"vshard":   map[string]any{"bucket_count": 3000, "bootstrapped": false},
	}

	dir := t.TempDir()
	writeSeed(t, dir, doc)

	mem := membership.NewStatic(standbyID, map[uuid.UUID]membership.Member{
		primaryID: {URI: "inproc://primary", Alive: true},
		standbyID: {URI: "inproc://standby", Alive: true},
	})

	role := &captureRole{}
	reg := roles.NewRegistry()
	require.NoError(t, reg.Register(role))

	storage := sharding.NewReferenceService(false)

	_, err := applier.New(context.Background(), applier.Config{
		WorkDir:    dir,
		MyUUID:     standbyID,
		Roles:      reg,
		Membership: mem,
		Transport:  transport.NewInProcess(),
		Storage:    storage,
	})
	require.NoError(t, err)

	count, isMaster := role.snapshot()
	require.Equal(t, 1, count, "role must be applied once during the initial warm-restart apply")
	require.False(t, isMaster, "standby must not be master while primary is alive")

	before, ok := storage.CurrentCfg()
	require.True(t, ok)
	require.Equal(t, primaryID, before.Replicasets[rsID].Master)

	mem.SetAlive(primaryID, false)

	require.Eventually(t, func() bool {
		_, isMaster := role.snapshot()
		return isMaster
	}, time.Second, 5*time.Millisecond, "standby must become master once primary is reported down")

	after, ok := storage.CurrentCfg()
	require.True(t, ok)
	require.Equal(t, standbyID, after.Replicasets[rsID].Master, "sharding map must reflect the new master")
	require.Contains(t, after.Replicasets[rsID].Replicas, primaryID)
}
