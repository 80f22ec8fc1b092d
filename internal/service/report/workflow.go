// Package report implements the report review state machine that gates
// milestone completion.
package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
)

// Store is the persistence the workflow needs.
type Store interface {
	Insert(ctx context.Context, rep *model.Report) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Report, error)
	DecideCAS(ctx context.Context, id int64, to model.ReportStatus, feedback, note *string) (bool, error)
}

// Publisher pushes domain events to the MQ.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

type Workflow struct {
	reports   Store
	publisher Publisher
	logger    *zap.Logger
}

func NewWorkflow(reports Store, publisher Publisher, logger *zap.Logger) *Workflow {
	return &Workflow{
		reports:   reports,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit files a new report in SUBMITTED. A report answering a
// CHANGES_REQUESTED decision is a brand-new row in the same
// (author, type) thread; the rejected one keeps its history.
func (w *Workflow) Submit(ctx context.Context, rep *model.Report) (*model.Report, error) {
	rep.Status = model.ReportStatusSubmitted
	rep.Feedback = nil
	rep.DecidedAt = nil

	if _, err := w.reports.Insert(ctx, rep); err != nil {
		return nil, err
	}

	w.logger.Info("Report submitted",
		zap.Int64("report_id", rep.ID),
		zap.Int64("milestone_id", rep.MilestoneID),
		zap.Int64("author_id", rep.AuthorID),
		zap.String("report_type", string(rep.ReportType)),
	)
	return rep, nil
}

// Approve transitions a SUBMITTED report to APPROVED. Approving an already
// APPROVED report is a no-op, which is what makes the sweep's retries safe.
// A non-empty note marks the approval as system-generated.
func (w *Workflow) Approve(ctx context.Context, reportID int64, note string) error {
	rep, err := w.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}

	switch rep.Status {
	case model.ReportStatusApproved:
		return nil
	case model.ReportStatusChangesRequested:
		return &model.InvalidTransitionError{
			Entity: "report",
			From:   string(rep.Status),
			To:     string(model.ReportStatusApproved),
		}
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}

	ok, err := w.reports.DecideCAS(ctx, reportID, model.ReportStatusApproved, nil, notePtr)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race. A concurrent approval is fine; anything else is not.
		rep, err = w.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		if rep.Status == model.ReportStatusApproved {
			return nil
		}
		return &model.InvalidTransitionError{
			Entity: "report",
			From:   string(rep.Status),
			To:     string(model.ReportStatusApproved),
		}
	}

	w.logger.Info("Report approved",
		zap.Int64("report_id", reportID),
		zap.Int64("milestone_id", rep.MilestoneID),
		zap.Bool("auto", note != ""),
	)

	if err := w.publisher.Publish(mqcontracts.RoutingKeyReportApproved, mqcontracts.ReportDecidedPayload{
		ReportID:     reportID,
		MilestoneID:  rep.MilestoneID,
		AuthorID:     rep.AuthorID,
		Status:       string(model.ReportStatusApproved),
		AutoApproved: note != "",
		DecidedAt:    time.Now(),
	}); err != nil {
		// The decision is committed; a lost event must not undo it.
		w.logger.Error("Failed to publish report.approved event",
			zap.Int64("report_id", reportID),
			zap.Error(err),
		)
	}

	return nil
}

// RequestChanges rejects a SUBMITTED report back to its author. Feedback is
// mandatory; the author answers with a new submission.
func (w *Workflow) RequestChanges(ctx context.Context, reportID int64, feedback string) error {
	if feedback == "" {
		return model.ErrFeedbackRequired
	}

	rep, err := w.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}

	if rep.Status != model.ReportStatusSubmitted {
		return &model.InvalidTransitionError{
			Entity: "report",
			From:   string(rep.Status),
			To:     string(model.ReportStatusChangesRequested),
		}
	}

	ok, err := w.reports.DecideCAS(ctx, reportID, model.ReportStatusChangesRequested, &feedback, nil)
	if err != nil {
		return err
	}
	if !ok {
		rep, err = w.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		return &model.InvalidTransitionError{
			Entity: "report",
			From:   string(rep.Status),
			To:     string(model.ReportStatusChangesRequested),
		}
	}

	w.logger.Info("Report changes requested",
		zap.Int64("report_id", reportID),
		zap.Int64("milestone_id", rep.MilestoneID),
	)

	if err := w.publisher.Publish(mqcontracts.RoutingKeyReportChanges, mqcontracts.ReportDecidedPayload{
		ReportID:    reportID,
		MilestoneID: rep.MilestoneID,
		AuthorID:    rep.AuthorID,
		Status:      string(model.ReportStatusChangesRequested),
		Feedback:    feedback,
		DecidedAt:   time.Now(),
	}); err != nil {
		w.logger.Error("Failed to publish report.changes_requested event",
			zap.Int64("report_id", reportID),
			zap.Error(err),
		)
	}

	return nil
}
