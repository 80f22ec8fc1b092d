// Package mq defines the event payloads exchanged over the `events` topic
// exchange. Consumers in other services bind by routing key; the structs here
// are the wire contract.
package mq

import "time"

// Routing keys published by this service.
const (
	RoutingKeyMilestoneDeposited   = "milestone.deposited"
	RoutingKeyMilestoneCompleted   = "milestone.completed"
	RoutingKeyMilestoneDistributed = "milestone.distributed"
	RoutingKeyReportApproved       = "report.approved"
	RoutingKeyReportChanges        = "report.changes_requested"
	RoutingKeyPoolPaidOut          = "pool.paid_out"
)

// Routing keys consumed by this service.
const (
	RoutingKeyDepositConfirmed = "escrow.deposit.confirmed"
)

// DepositConfirmedPayload comes from the payment gateway once company funds
// settle into a milestone's escrow sub-wallet.
type DepositConfirmedPayload struct {
	EventID     string    `json:"event_id"`
	MilestoneID int64     `json:"milestone_id"`
	Amount      int64     `json:"amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type MilestoneStatusPayload struct {
	MilestoneID int64     `json:"milestone_id"`
	ProjectID   int64     `json:"project_id"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ReportDecidedPayload struct {
	ReportID     int64     `json:"report_id"`
	MilestoneID  int64     `json:"milestone_id"`
	AuthorID     int64     `json:"author_id"`
	Status       string    `json:"status"`
	Feedback     string    `json:"feedback,omitempty"`
	AutoApproved bool      `json:"auto_approved"`
	DecidedAt    time.Time `json:"decided_at"`
}

type MilestoneDistributedPayload struct {
	MilestoneID    int64 `json:"milestone_id"`
	DisbursementID int64 `json:"disbursement_id"`
	TotalAmount    int64 `json:"total_amount"`
	SystemFee      int64 `json:"system_fee"`
	MentorShare    int64 `json:"mentor_share"`
	TeamShare      int64 `json:"team_share"`
}

type PoolPaidOutPayload struct {
	DisbursementID int64  `json:"disbursement_id"`
	PoolRole       string `json:"pool_role"`
	MemberCount    int    `json:"member_count"`
	TotalPaid      int64  `json:"total_paid"`
}
