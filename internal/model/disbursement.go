package model

import "time"

type DisbursementStatus string

const (
	DisbursementStatusPreviewed DisbursementStatus = "PREVIEWED"
	DisbursementStatusExecuted  DisbursementStatus = "EXECUTED"
)

// Disbursement is the three-way split of a milestone budget. The milestone id
// doubles as the idempotency key: at most one row per milestone, immutable
// once EXECUTED.
type Disbursement struct {
	ID          int64              `json:"id"`
	MilestoneID int64              `json:"milestone_id"`
	TotalAmount int64              `json:"total_amount"`
	SystemFee   int64              `json:"system_fee"`
	MentorShare int64              `json:"mentor_share"`
	TeamShare   int64              `json:"team_share"`
	Status      DisbursementStatus `json:"status"`
	ExecutedAt  *time.Time         `json:"executed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// PoolShare returns the share owned by the given pool role.
func (d *Disbursement) PoolShare(role PoolRole) int64 {
	if role == PoolRoleMentor {
		return d.MentorShare
	}
	return d.TeamShare
}
