package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type DisbursementRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDisbursementRepository(db *pgxpool.Pool, logger *zap.Logger) *DisbursementRepository {
	return &DisbursementRepository{
		db:     db,
		logger: logger,
	}
}

const disbursementColumns = `
    id, milestone_id, total_amount, system_fee, mentor_share, team_share,
    status, executed_at, created_at, updated_at
`

// UpsertPreview stores a previewed split, keyed by milestone id. A repeat
// preview while still PREVIEWED replaces the amounts; once EXECUTED the row
// is immutable and is returned as-is.
func (r *DisbursementRepository) UpsertPreview(ctx context.Context, d *model.Disbursement) (*model.Disbursement, error) {
	query := `
        INSERT INTO disbursements (milestone_id, total_amount, system_fee, mentor_share, team_share, status)
        VALUES ($1, $2, $3, $4, $5, 'PREVIEWED')
        ON CONFLICT (milestone_id) DO UPDATE
        SET total_amount = EXCLUDED.total_amount,
            system_fee   = EXCLUDED.system_fee,
            mentor_share = EXCLUDED.mentor_share,
            team_share   = EXCLUDED.team_share,
            updated_at   = NOW()
        WHERE disbursements.status = 'PREVIEWED'
        RETURNING ` + disbursementColumns

	row, err := scanDisbursement(r.db.QueryRow(ctx, query,
		d.MilestoneID, d.TotalAmount, d.SystemFee, d.MentorShare, d.TeamShare,
	))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to upsert disbursement preview",
			zap.Int64("milestone_id", d.MilestoneID),
			zap.Error(err),
		)
		return nil, err
	}

	// Conflict hit an EXECUTED row; hand back the immutable record.
	return r.GetByMilestoneID(ctx, d.MilestoneID)
}

func (r *DisbursementRepository) GetByID(ctx context.Context, id int64) (*model.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + ` FROM disbursements WHERE id = $1`

	d, err := scanDisbursement(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get disbursement", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return d, nil
}

func (r *DisbursementRepository) GetByMilestoneID(ctx context.Context, milestoneID int64) (*model.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + ` FROM disbursements WHERE milestone_id = $1`

	d, err := scanDisbursement(r.db.QueryRow(ctx, query, milestoneID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get disbursement by milestone",
			zap.Int64("milestone_id", milestoneID),
			zap.Error(err),
		)
		return nil, err
	}
	return d, nil
}

func scanDisbursement(row rowScanner) (*model.Disbursement, error) {
	var d model.Disbursement
	err := row.Scan(
		&d.ID,
		&d.MilestoneID,
		&d.TotalAmount,
		&d.SystemFee,
		&d.MentorShare,
		&d.TeamShare,
		&d.Status,
		&d.ExecutedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
