// Package split computes the deterministic three-way division of a milestone
// budget. Preview and execute both go through Split so they can never
// disagree.
package split

import "milestone-service/internal/model"

// Shares is the result of splitting a budget. The remainder after flooring
// the fee and mentor cuts lands in the team share, the pool least sensitive
// to a few minor units, so the sum always equals the input exactly.
type Shares struct {
	SystemFee   int64 `json:"system_fee"`
	MentorShare int64 `json:"mentor_share"`
	TeamShare   int64 `json:"team_share"`
}

// Total returns the sum of the three shares.
func (s Shares) Total() int64 {
	return s.SystemFee + s.MentorShare + s.TeamShare
}

// Split divides a non-negative amount of minor currency units 10/20/70.
func Split(totalAmount int64) (Shares, error) {
	if totalAmount < 0 {
		return Shares{}, model.ErrInvalidAmount
	}

	// Direct division floors each cut and cannot overflow, unlike scaling
	// through basis points first.
	fee := totalAmount / 10    // 10% platform fee
	mentor := totalAmount / 5  // 20% mentor pool

	return Shares{
		SystemFee:   fee,
		MentorShare: mentor,
		TeamShare:   totalAmount - fee - mentor,
	}, nil
}

// Verify recomputes the split for a stored disbursement and reports whether
// the persisted shares match. A mismatch means a calculator bug or a
// corrupted row; callers must abort, never proceed.
func Verify(d *model.Disbursement) bool {
	shares, err := Split(d.TotalAmount)
	if err != nil {
		return false
	}
	return shares.SystemFee == d.SystemFee &&
		shares.MentorShare == d.MentorShare &&
		shares.TeamShare == d.TeamShare
}
