package model

import "time"

type ExtensionStatus string

const (
	ExtensionStatusPending  ExtensionStatus = "PENDING"
	ExtensionStatusApproved ExtensionStatus = "APPROVED"
	ExtensionStatusRejected ExtensionStatus = "REJECTED"
)

// ExtensionRequest asks the company to move a milestone's end date.
// It never touches monetary state.
type ExtensionRequest struct {
	ID               int64           `json:"id"`
	MilestoneID      int64           `json:"milestone_id"`
	RequesterID      int64           `json:"requester_id"`
	CurrentEndDate   time.Time       `json:"current_end_date"`
	RequestedEndDate time.Time       `json:"requested_end_date"`
	Reason           string          `json:"reason"`
	Status           ExtensionStatus `json:"status"`
	ReviewReason     *string         `json:"review_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	DecidedAt        *time.Time      `json:"decided_at,omitempty"`
}
