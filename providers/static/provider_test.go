package static_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/R-omk/cartridge/providers/static"
)

func TestNewTopology_BuildsServersAndReplicasets(t *testing.T) {
	master := uuid.New()
	replica := uuid.New()
	rsID := uuid.New()

	servers := map[uuid.UUID]static.ServerSpec{
		master:  {URI: "tcp://storage-1:3301"},
		replica: {URI: "tcp://storage-2:3301"},
	}
	replicasets := map[uuid.UUID]static.ReplicasetSpec{
		rsID: {Roles: []string{"vshard-storage"}, Master: []uuid.UUID{master, replica}, Weight: 1},
	}

	topo, err := static.NewTopology(servers, replicasets, true, []string{"vshard-storage", "vshard-router"})
	require.NoError(t, err)
	require.True(t, topo.Failover)
	require.Len(t, topo.Servers, 2)
	require.Len(t, topo.Replicasets, 1)
	require.True(t, topo.Replicasets[rsID].HasRole("vshard-storage"))
}

func TestNewTopology_RejectsUnknownMaster(t *testing.T) {
	servers := map[uuid.UUID]static.ServerSpec{uuid.New(): {URI: "tcp://a:3301"}}
	replicasets := map[uuid.UUID]static.ReplicasetSpec{
		uuid.New(): {Master: []uuid.UUID{uuid.New()}},
	}

	_, err := static.NewTopology(servers, replicasets, false, nil)
	require.Error(t, err)
}

func TestNewTopology_RejectsEmptyServers(t *testing.T) {
	_, err := static.NewTopology(nil, nil, false, nil)
	require.Error(t, err)
}
