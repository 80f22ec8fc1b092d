package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type AllocationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAllocationRepository(db *pgxpool.Pool, logger *zap.Logger) *AllocationRepository {
	return &AllocationRepository{
		db:     db,
		logger: logger,
	}
}

// GetSet loads the current allocation set for a pool, or ErrNotFound.
func (r *AllocationRepository) GetSet(ctx context.Context, disbursementID int64, role model.PoolRole) (*model.AllocationSet, error) {
	query := `
        SELECT id, disbursement_id, pool_role, version, status, created_at, updated_at
        FROM allocation_sets
        WHERE disbursement_id = $1 AND pool_role = $2
    `

	var set model.AllocationSet
	err := r.db.QueryRow(ctx, query, disbursementID, role).Scan(
		&set.ID,
		&set.DisbursementID,
		&set.PoolRole,
		&set.Version,
		&set.Status,
		&set.CreatedAt,
		&set.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &set, nil
}

// GetMembers returns the member rows of a set.
func (r *AllocationRepository) GetMembers(ctx context.Context, setID int64) ([]*model.MemberAllocation, error) {
	query := `
        SELECT id, set_id, disbursement_id, user_id, role, is_leader, amount
        FROM member_allocations
        WHERE set_id = $1
        ORDER BY user_id
    `

	rows, err := r.db.Query(ctx, query, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*model.MemberAllocation
	for rows.Next() {
		var m model.MemberAllocation
		if err := rows.Scan(
			&m.ID,
			&m.SetID,
			&m.DisbursementID,
			&m.UserID,
			&m.Role,
			&m.IsLeader,
			&m.Amount,
		); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}

	return members, rows.Err()
}

// SaveSet writes a leader's allocation set with optimistic concurrency.
// expectedVersion 0 means "create"; otherwise the stored version must still
// match, and a stale write fails with ErrConcurrentModification instead of
// silently overwriting a newer edit. A PAID set is immutable.
func (r *AllocationRepository) SaveSet(ctx context.Context, set *model.AllocationSet, members []*model.MemberAllocation, expectedVersion int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if expectedVersion == 0 {
		err = tx.QueryRow(ctx, `
            INSERT INTO allocation_sets (disbursement_id, pool_role, version, status)
            VALUES ($1, $2, 1, 'COMMITTED')
            ON CONFLICT (disbursement_id, pool_role) DO NOTHING
            RETURNING id, version
        `, set.DisbursementID, set.PoolRole).Scan(&set.ID, &set.Version)
		if errors.Is(err, pgx.ErrNoRows) {
			// A set appeared since the caller looked; their view is stale.
			return model.ErrConcurrentModification
		}
		if err != nil {
			return err
		}
	} else {
		err = tx.QueryRow(ctx, `
            UPDATE allocation_sets
            SET version = version + 1, updated_at = NOW()
            WHERE disbursement_id = $1 AND pool_role = $2
              AND version = $3 AND status = 'COMMITTED'
            RETURNING id, version
        `, set.DisbursementID, set.PoolRole, expectedVersion).Scan(&set.ID, &set.Version)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrConcurrentModification
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM member_allocations WHERE set_id = $1`, set.ID); err != nil {
			return err
		}
	}

	for _, m := range members {
		if _, err := tx.Exec(ctx, `
            INSERT INTO member_allocations (set_id, disbursement_id, user_id, role, is_leader, amount)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, set.ID, set.DisbursementID, m.UserID, m.Role, m.IsLeader, m.Amount); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit allocation set: %w", err)
	}

	r.logger.Info("Allocation set saved",
		zap.Int64("disbursement_id", set.DisbursementID),
		zap.String("pool_role", string(set.PoolRole)),
		zap.Int64("version", set.Version),
		zap.Int("members", len(members)),
	)
	return nil
}
