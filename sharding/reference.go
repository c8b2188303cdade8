package sharding

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/snksoft/crc"

	"github.com/R-omk/cartridge/topology"
)

// Cfg is the sharding configuration the Local Applier (§4.E step 4) and
// Failover Worker (§4.H step 3) install into a Service.
type Cfg struct {
	BucketCount uint64
	Replicasets map[uuid.UUID]topology.VShardShardingEntry
}

// Equal deep-compares two Cfgs the way the Failover Worker needs to decide
// whether reconfiguration is actually necessary (§4.H step 3: "compare
// deeply with the sharding currently installed").
func (c Cfg) Equal(other Cfg) bool {
	return reflect.DeepEqual(c, other)
}

// Service is the contract for the built-in vshard-storage/vshard-router
// pseudo-roles (spec.md "Out of scope: the built-in sharding service
// (router/storage)"). A cluster instance may have a storage Service, a
// router Service, both, or neither, depending on which of the two built-in
// roles its replicaset carries.
type Service interface {
	Configure(ctx context.Context, cfg Cfg) error
	CurrentCfg() (Cfg, bool)
}

// ReferenceService is a concrete, in-process Service: it records whatever
// Cfg was last installed and, for a storage service, also computes an
// etalon bucket balance via CalculateEtalonBalance — enough to drive the
// applier's tests without a real vshard runtime behind it.
type ReferenceService struct {
	mu       sync.Mutex
	cfg      Cfg
	hasCfg   bool
	isRouter bool
}

// NewReferenceService returns a ReferenceService. isRouter selects which of
// the two pseudo-roles this instance behaves as; it only affects
// EtalonBalance's availability (a pure router never computes one).
func NewReferenceService(isRouter bool) *ReferenceService {
	return &ReferenceService{isRouter: isRouter}
}

func (s *ReferenceService) Configure(ctx context.Context, cfg Cfg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.hasCfg = true

	return nil
}

func (s *ReferenceService) CurrentCfg() (Cfg, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg, s.hasCfg
}

// EtalonBalance computes each configured replicaset's ideal bucket count
// under the currently installed Cfg. Only meaningful for a storage service.
func (s *ReferenceService) EtalonBalance() (map[uuid.UUID]uint64, error) {
	if s.isRouter {
		return nil, fmt.Errorf("sharding: a router service does not compute an etalon balance")
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(cfg.Replicasets))
	weighted := make([]*WeightedReplicaset, 0, len(cfg.Replicasets))

	for id, entry := range cfg.Replicasets {
		ids = append(ids, id)
		weighted = append(weighted, &WeightedReplicaset{Weight: entry.Weight})
	}

	if err := CalculateEtalonBalance(weighted, cfg.BucketCount); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]uint64, len(ids))
	for i, id := range ids {
		out[id] = weighted[i].EtalonBucketCount
	}

	return out, nil
}

// bucketHash is the teacher's CRC32 parameterization (width 32, poly
// 0x1EDC6F41, reflected in/out, init/final 0xFFFFFFFF/0x0), used unchanged
// because bucket placement must be bit-for-bit reproducible across
// instances and across restarts.
var bucketHash = crc.NewHash(&crc.Parameters{
	Width:      32,
	Polynomial: 0x1EDC6F41,
	FinalXor:   0x0,
	ReflectIn:  true,
	ReflectOut: true,
	Init:       0xFFFFFFFF,
})

// BucketIDStrCRC32 maps shardKey onto a 1-based bucket id in
// [1, totalBucketCount].
func BucketIDStrCRC32(shardKey string, totalBucketCount uint64) uint64 {
	return bucketHash.CalculateCRC([]byte(shardKey))%totalBucketCount + 1
}
