package model

import "time"

// PoolRole identifies which share of a disbursement a pool owns.
type PoolRole string

const (
	PoolRoleMentor PoolRole = "MENTOR"
	PoolRoleTalent PoolRole = "TALENT"
)

func (r PoolRole) Valid() bool {
	return r == PoolRoleMentor || r == PoolRoleTalent
}

type AllocationSetStatus string

const (
	AllocationSetStatusCommitted AllocationSetStatus = "COMMITTED"
	AllocationSetStatusPaid      AllocationSetStatus = "PAID"
)

// AllocationSet is one committed version of a leader's member split for a
// pool. Version is bumped on every write; a stale write loses the compare.
type AllocationSet struct {
	ID             int64               `json:"id"`
	DisbursementID int64               `json:"disbursement_id"`
	PoolRole       PoolRole            `json:"pool_role"`
	Version        int64               `json:"version"`
	Status         AllocationSetStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// MemberAllocation is one member's amount inside an allocation set.
// Percentage is derived for display, never persisted.
type MemberAllocation struct {
	ID             int64    `json:"id"`
	SetID          int64    `json:"-"`
	DisbursementID int64    `json:"disbursement_id"`
	UserID         int64    `json:"user_id"`
	Role           PoolRole `json:"role"`
	IsLeader       bool     `json:"is_leader"`
	Amount         int64    `json:"amount"`
}
