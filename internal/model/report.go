package model

import "time"

type ReportStatus string

const (
	ReportStatusSubmitted        ReportStatus = "SUBMITTED"
	ReportStatusChangesRequested ReportStatus = "CHANGES_REQUESTED"
	ReportStatusApproved         ReportStatus = "APPROVED"
)

type AuthorRole string

const (
	AuthorRoleMentor AuthorRole = "MENTOR"
	AuthorRoleTalent AuthorRole = "TALENT"
)

type ReportType string

const (
	ReportTypeDaily     ReportType = "DAILY"
	ReportTypeWeekly    ReportType = "WEEKLY"
	ReportTypeMilestone ReportType = "MILESTONE"
	ReportTypeDelivery  ReportType = "DELIVERY"
)

// Report is one immutable submission in a report thread. A rejected report
// stays in history with its feedback; the author resubmits a new row.
type Report struct {
	ID           int64        `json:"id"`
	MilestoneID  int64        `json:"milestone_id"`
	AuthorID     int64        `json:"author_id"`
	AuthorRole   AuthorRole   `json:"author_role"`
	ReportType   ReportType   `json:"report_type"`
	Content      string       `json:"content"`
	Attachments  []string     `json:"attachments,omitempty"`
	Status       ReportStatus `json:"status"`
	Feedback     *string      `json:"feedback,omitempty"`      // set only on CHANGES_REQUESTED
	DecisionNote *string      `json:"decision_note,omitempty"` // set by the auto-approval sweep
	SubmittedAt  time.Time    `json:"submitted_at"`
	DecidedAt    *time.Time   `json:"decided_at,omitempty"`
}
