package sharding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateEtalonBalance_EvenWeights(t *testing.T) {
	replicasets := []*WeightedReplicaset{
		{Weight: 1},
		{Weight: 1},
		{Weight: 1},
	}

	require.NoError(t, CalculateEtalonBalance(replicasets, 3000))

	var total uint64
	for _, rs := range replicasets {
		require.Equal(t, uint64(1000), rs.EtalonBucketCount)
		total += rs.EtalonBucketCount
	}
	require.Equal(t, uint64(3000), total)
}

func TestCalculateEtalonBalance_UnevenWeights(t *testing.T) {
	replicasets := []*WeightedReplicaset{
		{Weight: 2},
		{Weight: 1},
	}

	require.NoError(t, CalculateEtalonBalance(replicasets, 3000))

	var total uint64
	for _, rs := range replicasets {
		total += rs.EtalonBucketCount
	}
	require.Equal(t, uint64(3000), total)
	require.Greater(t, replicasets[0].EtalonBucketCount, replicasets[1].EtalonBucketCount)
}

func TestCalculateEtalonBalance_HonorsPinnedCount(t *testing.T) {
	replicasets := []*WeightedReplicaset{
		{Weight: 1, PinnedCount: 900},
		{Weight: 1},
	}

	require.NoError(t, CalculateEtalonBalance(replicasets, 1000))

	require.GreaterOrEqual(t, replicasets[0].EtalonBucketCount, uint64(900))

	var total uint64
	for _, rs := range replicasets {
		total += rs.EtalonBucketCount
	}
	require.Equal(t, uint64(1000), total)
}

func TestCalculateEtalonBalance_RejectsZeroWeightSum(t *testing.T) {
	replicasets := []*WeightedReplicaset{{Weight: 0}}
	require.Error(t, CalculateEtalonBalance(replicasets, 100))
}

func TestBucketIDStrCRC32_IsDeterministic(t *testing.T) {
	id1 := BucketIDStrCRC32("2707623829", 3000)
	id2 := BucketIDStrCRC32("2707623829", 3000)
	require.Equal(t, id1, id2)
	require.GreaterOrEqual(t, id1, uint64(1))
	require.LessOrEqual(t, id1, uint64(3000))
}

func TestBucketIDStrCRC32_MatchesKnownHashSum(t *testing.T) {
	require.Equal(t, uint64(103202), BucketIDStrCRC32("2707623829", 256000))
}
