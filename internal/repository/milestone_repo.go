package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/metrics"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		logger: logger,
	}
}

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) (int64, error) {
	query := `
        INSERT INTO milestones (project_id, budget, start_date, end_date, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		m.ProjectID,
		m.Budget,
		m.StartDate,
		m.EndDate,
		m.Status,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return 0, err
	}

	r.logger.Info("Milestone inserted",
		zap.Int64("id", id),
		zap.Int64("project_id", m.ProjectID),
	)
	return id, nil
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id int64) (*model.Milestone, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("get", "milestones", time.Since(start))
	}()

	query := `
        SELECT id, project_id, budget, start_date, end_date, status, created_at, updated_at
        FROM milestones
        WHERE id = $1
    `

	var m model.Milestone
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.ProjectID,
		&m.Budget,
		&m.StartDate,
		&m.EndDate,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get milestone", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	return &m, nil
}

// UpdateStatusCAS moves a milestone from one status to the next only if it is
// still in the expected status. Returns false when the compare fails, which
// is how concurrent callers lose the race without a second write.
func (r *MilestoneRepository) UpdateStatusCAS(ctx context.Context, id int64, from, to model.MilestoneStatus) (bool, error) {
	query := `
        UPDATE milestones
        SET status = $1, updated_at = NOW()
        WHERE id = $2 AND status = $3
    `

	tag, err := r.db.Exec(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("Failed to update milestone status",
			zap.Int64("id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// UpdateEndDate moves the milestone end date (extension approval).
func (r *MilestoneRepository) UpdateEndDate(ctx context.Context, id int64, endDate time.Time) error {
	query := `
        UPDATE milestones
        SET end_date = $1, updated_at = NOW()
        WHERE id = $2
    `

	tag, err := r.db.Exec(ctx, query, endDate, id)
	if err != nil {
		r.logger.Error("Failed to update milestone end date", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
