package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type ExtensionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewExtensionRepository(db *pgxpool.Pool, logger *zap.Logger) *ExtensionRepository {
	return &ExtensionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ExtensionRepository) Insert(ctx context.Context, req *model.ExtensionRequest) (int64, error) {
	query := `
        INSERT INTO extension_requests
            (milestone_id, requester_id, current_end_date, requested_end_date, reason, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `

	err := r.db.QueryRow(ctx, query,
		req.MilestoneID,
		req.RequesterID,
		req.CurrentEndDate,
		req.RequestedEndDate,
		req.Reason,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to insert extension request", zap.Error(err))
		return 0, err
	}

	return req.ID, nil
}

func (r *ExtensionRepository) GetByID(ctx context.Context, id int64) (*model.ExtensionRequest, error) {
	query := `
        SELECT id, milestone_id, requester_id, current_end_date, requested_end_date,
               reason, status, review_reason, created_at, decided_at
        FROM extension_requests
        WHERE id = $1
    `

	var req model.ExtensionRequest
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.MilestoneID,
		&req.RequesterID,
		&req.CurrentEndDate,
		&req.RequestedEndDate,
		&req.Reason,
		&req.Status,
		&req.ReviewReason,
		&req.CreatedAt,
		&req.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get extension request", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	return &req, nil
}

// DecideCAS resolves a PENDING request. Returns false when the request was
// already decided.
func (r *ExtensionRepository) DecideCAS(ctx context.Context, id int64, to model.ExtensionStatus, reviewReason string) (bool, error) {
	query := `
        UPDATE extension_requests
        SET status = $1, review_reason = $2, decided_at = NOW()
        WHERE id = $3 AND status = 'PENDING'
    `

	tag, err := r.db.Exec(ctx, query, to, reviewReason, id)
	if err != nil {
		r.logger.Error("Failed to decide extension request", zap.Int64("id", id), zap.Error(err))
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
