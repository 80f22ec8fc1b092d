// Package allocation validates and persists a pool leader's member-level
// split of a disbursement share.
package allocation

import (
	"math"

	"milestone-service/internal/model"
)

// Validate checks a leader's allocation map against a pool share. Members who
// left the project keep historical allocations already executed, but any new
// positive amount must name an active member. The whole map is rejected on
// the first violation; nothing is merged or clamped silently.
func Validate(poolShare int64, allocations map[int64]int64, activeMemberIDs map[int64]bool) error {
	var sum int64
	for memberID, amount := range allocations {
		if amount < 0 {
			return &model.InvalidAllocationError{MemberID: memberID, Reason: "negative amount"}
		}
		if amount > 0 && !activeMemberIDs[memberID] {
			return &model.InvalidAllocationError{MemberID: memberID, Reason: "member is not active on this milestone"}
		}
		sum += amount
	}

	if sum > poolShare {
		return &model.OverAllocationError{PoolShare: poolShare, Allocated: sum}
	}

	return nil
}

// Percentages derives display percentages from raw amounts. Derived only:
// the stored integer amounts stay the source of truth, so rounding here can
// never threaten the monetary invariant.
func Percentages(poolShare int64, allocations map[int64]int64) map[int64]int {
	out := make(map[int64]int, len(allocations))
	if poolShare <= 0 {
		for memberID := range allocations {
			out[memberID] = 0
		}
		return out
	}
	for memberID, amount := range allocations {
		out[memberID] = int(math.Round(float64(amount) / float64(poolShare) * 100))
	}
	return out
}
