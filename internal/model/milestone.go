package model

import "time"

// MilestoneStatus is the escrow release lifecycle of a milestone.
type MilestoneStatus string

const (
	MilestoneStatusPendingDeposit MilestoneStatus = "PENDING_DEPOSIT"
	MilestoneStatusDeposited      MilestoneStatus = "DEPOSITED"
	MilestoneStatusCompleted      MilestoneStatus = "COMPLETED"
	MilestoneStatusPaid           MilestoneStatus = "PAID"
	MilestoneStatusDistributed    MilestoneStatus = "DISTRIBUTED"
)

// milestoneOrder encodes the one-way transition chain. A transition is legal
// only between adjacent ranks.
var milestoneOrder = map[MilestoneStatus]int{
	MilestoneStatusPendingDeposit: 0,
	MilestoneStatusDeposited:      1,
	MilestoneStatusCompleted:      2,
	MilestoneStatusPaid:           3,
	MilestoneStatusDistributed:    4,
}

// CanTransitionTo reports whether moving from s to next is a legal
// single-step forward transition.
func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	from, ok := milestoneOrder[s]
	if !ok {
		return false
	}
	to, ok := milestoneOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

type Milestone struct {
	ID        int64           `json:"id"`
	ProjectID int64           `json:"project_id"`
	Budget    int64           `json:"budget"` // minor currency units, never float
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Status    MilestoneStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
