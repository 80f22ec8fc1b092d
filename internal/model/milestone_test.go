package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	chain := []MilestoneStatus{
		MilestoneStatusPendingDeposit,
		MilestoneStatusDeposited,
		MilestoneStatusCompleted,
		MilestoneStatusPaid,
		MilestoneStatusDistributed,
	}

	for i, from := range chain {
		for j, to := range chain {
			expected := j == i+1
			assert.Equal(t, expected, from.CanTransitionTo(to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestCanTransitionToUnknownStatus(t *testing.T) {
	assert.False(t, MilestoneStatus("BOGUS").CanTransitionTo(MilestoneStatusDeposited))
	assert.False(t, MilestoneStatusDeposited.CanTransitionTo(MilestoneStatus("BOGUS")))
}

func TestInvalidTransitionErrorMatchesSentinel(t *testing.T) {
	err := &InvalidTransitionError{Entity: "milestone", From: "PAID", To: "DEPOSITED"}
	assert.True(t, errors.Is(err, ErrInvalidStatusTransition))
	assert.Contains(t, err.Error(), "PAID")
}

func TestInsufficientEscrowShortfall(t *testing.T) {
	err := &InsufficientEscrowError{Required: 10_000_000, Available: 9_000_000}
	assert.Equal(t, int64(1_000_000), err.Shortfall())
}

func TestPoolShare(t *testing.T) {
	d := &Disbursement{MentorShare: 2_000_000, TeamShare: 7_000_000}
	assert.Equal(t, int64(2_000_000), d.PoolShare(PoolRoleMentor))
	assert.Equal(t, int64(7_000_000), d.PoolShare(PoolRoleTalent))
}

func TestWalletIDScheme(t *testing.T) {
	assert.Equal(t, "escrow:42", EscrowWalletID(42))
	assert.Equal(t, "user:7", UserWalletID(7))
	assert.Equal(t, "platform", PlatformWalletID)
}
