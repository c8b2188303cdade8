// Package sharding implements the contract for the built-in
// vshard-storage/vshard-router pseudo-roles (spec.md "Out of scope: the
// built-in sharding service (router/storage)") plus a reference
// implementation that actually tracks installed configuration and computes
// an etalon bucket balance, ported from the teacher's
// CalculateEtalonBalance.
package sharding

import (
	"fmt"
	"math"
)

// WeightedReplicaset is the minimal shape CalculateEtalonBalance needs: a
// replicaset's weight-based share of the bucket space, plus any pinned
// floor and a flag to exclude it from further disbalance spreading once
// its pinned count has been honored.
type WeightedReplicaset struct {
	Weight            float64
	PinnedCount       uint64
	IgnoreDisbalance  bool
	EtalonBucketCount uint64
}

// CalculateEtalonBalance computes the ideal bucket count for each
// replicaset in place. This iterative algorithm seeks the optimal balance
// within a cluster by calculating the ideal bucket count for each
// replicaset at every step. If the ideal count cannot be achieved due to
// pinned buckets, the algorithm makes a best effort to approximate balance
// by ignoring the replicaset with pinned buckets and its associated pinned
// count; after each iteration, a new balance is recalculated.
//
// At each iteration, the algorithm either concludes or disregards at least
// one new overloaded replicaset, so its time complexity is O(N^2), where N
// is the number of replicasets.
// based on https://github.com/tarantool/vshard/blob/99ceaee014ea3a67424c2026545838e08d69b90c/vshard/replicaset.lua#L1358
func CalculateEtalonBalance(replicasets []*WeightedReplicaset, bucketCount uint64) error {
	isBalanceFound := false
	stepCount := 0
	replicasetCount := len(replicasets)

	weightSum := 0.0
	for _, rs := range replicasets {
		weightSum += rs.Weight
	}

	for !isBalanceFound {
		stepCount++

		if weightSum <= 0 {
			return fmt.Errorf("sharding: weightSum should be greater than 0")
		}

		bucketPerWeight := float64(bucketCount) / weightSum
		bucketsCalculated := uint64(0)

		for _, rs := range replicasets {
			if !rs.IgnoreDisbalance {
				rs.EtalonBucketCount = uint64(math.Ceil(rs.Weight * bucketPerWeight))
				bucketsCalculated += rs.EtalonBucketCount
			}
		}

		bucketsRest := bucketsCalculated - bucketCount
		isBalanceFound = true

		for _, rs := range replicasets {
			if rs.IgnoreDisbalance {
				continue
			}

			if bucketsRest > 0 {
				n := rs.Weight * bucketPerWeight
				ceil := math.Ceil(n)
				floor := math.Floor(n)
				if rs.EtalonBucketCount > 0 && ceil != floor {
					rs.EtalonBucketCount--
					bucketsRest--
				}
			}

			pinned := rs.PinnedCount
			if pinned > 0 && rs.EtalonBucketCount < pinned {
				isBalanceFound = false
				bucketCount -= pinned
				weightSum -= rs.Weight
				rs.EtalonBucketCount = pinned
				rs.IgnoreDisbalance = true
			}
		}

		if bucketsRest != 0 {
			return fmt.Errorf("sharding: bucketsRest should be 0")
		}

		if stepCount > replicasetCount {
			return fmt.Errorf("sharding: the rebalancer is broken")
		}
	}

	return nil
}
