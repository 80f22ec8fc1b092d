package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/metrics"
)

type ReportRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReportRepository(db *pgxpool.Pool, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReportRepository) Insert(ctx context.Context, rep *model.Report) (int64, error) {
	attachments, err := json.Marshal(rep.Attachments)
	if err != nil {
		return 0, err
	}
	if rep.Attachments == nil {
		attachments = []byte("[]")
	}

	query := `
        INSERT INTO reports (milestone_id, author_id, author_role, report_type, content, attachments, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, submitted_at
    `

	err = r.db.QueryRow(ctx, query,
		rep.MilestoneID,
		rep.AuthorID,
		rep.AuthorRole,
		rep.ReportType,
		rep.Content,
		attachments,
		rep.Status,
	).Scan(&rep.ID, &rep.SubmittedAt)

	if err != nil {
		r.logger.Error("Failed to insert report", zap.Error(err))
		return 0, err
	}

	return rep.ID, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*model.Report, error) {
	query := `
        SELECT id, milestone_id, author_id, author_role, report_type, content, attachments,
               status, feedback, decision_note, submitted_at, decided_at
        FROM reports
        WHERE id = $1
    `

	rep, err := scanReport(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get report", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return rep, nil
}

// DecideCAS moves a report out of SUBMITTED. Returns false when the report
// was already decided, so approve can treat a repeat as a no-op and
// requestChanges can fail it.
func (r *ReportRepository) DecideCAS(ctx context.Context, id int64, to model.ReportStatus, feedback, note *string) (bool, error) {
	query := `
        UPDATE reports
        SET status = $1, feedback = $2, decision_note = $3, decided_at = NOW()
        WHERE id = $4 AND status = 'SUBMITTED'
    `

	tag, err := r.db.Exec(ctx, query, to, feedback, note, id)
	if err != nil {
		r.logger.Error("Failed to decide report", zap.Int64("id", id), zap.Error(err))
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// ListSubmittedBefore returns reports still SUBMITTED past the SLA cutoff,
// oldest first. Served by the (status, submitted_at) index so the sweep
// never scans the whole table.
func (r *ReportRepository) ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Report, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("sweep_scan", "reports", time.Since(start))
	}()

	query := `
        SELECT id, milestone_id, author_id, author_role, report_type, content, attachments,
               status, feedback, decision_note, submitted_at, decided_at
        FROM reports
        WHERE status = 'SUBMITTED' AND submitted_at <= $1
        ORDER BY submitted_at ASC
        LIMIT $2
    `

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		r.logger.Error("Failed to list overdue reports", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}

	return reports, rows.Err()
}

// CountApproved counts APPROVED reports for a milestone.
func (r *ReportRepository) CountApproved(ctx context.Context, milestoneID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM reports WHERE milestone_id = $1 AND status = 'APPROVED'
    `, milestoneID).Scan(&count)
	return count, err
}

// CountUnresolvedChanges counts report threads whose latest submission sits
// in CHANGES_REQUESTED. A thread is one (author, report_type) chain; a newer
// SUBMITTED or APPROVED report supersedes the rejected one.
func (r *ReportRepository) CountUnresolvedChanges(ctx context.Context, milestoneID int64) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM (
            SELECT DISTINCT ON (author_id, report_type) status
            FROM reports
            WHERE milestone_id = $1
            ORDER BY author_id, report_type, submitted_at DESC
        ) latest
        WHERE latest.status = 'CHANGES_REQUESTED'
    `

	var count int
	err := r.db.QueryRow(ctx, query, milestoneID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	var rep model.Report
	var attachments []byte
	err := row.Scan(
		&rep.ID,
		&rep.MilestoneID,
		&rep.AuthorID,
		&rep.AuthorRole,
		&rep.ReportType,
		&rep.Content,
		&attachments,
		&rep.Status,
		&rep.Feedback,
		&rep.DecisionNote,
		&rep.SubmittedAt,
		&rep.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &rep.Attachments); err != nil {
			return nil, err
		}
	}
	return &rep, nil
}
