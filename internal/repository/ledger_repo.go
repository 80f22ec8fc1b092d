package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
)

// LedgerRepository owns the wallets table and the append-only transaction
// trail. Balances are only ever moved together with an append, in one
// storage transaction, so balance_after can never drift from the trail.
type LedgerRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewLedgerRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// ExecuteDisbursement is the single point where a milestone's escrow is
// released. In one transaction it:
//
//  1. CAS milestone PAID -> DISTRIBUTED
//  2. CAS disbursement PREVIEWED -> EXECUTED
//  3. applies every ledger entry (wallet balance move + append)
//  4. stages the milestone.distributed outbox event
//
// If either guard has already fired the transaction rolls back with
// ErrAlreadyDisbursed and zero writes reach the ledger.
func (r *LedgerRepository) ExecuteDisbursement(ctx context.Context, d *model.Disbursement, entries []*model.LedgerTransaction, event *outbox.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerAppend("execute", time.Since(start))
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE milestones
        SET status = 'DISTRIBUTED', updated_at = NOW()
        WHERE id = $1 AND status = 'PAID'
    `, d.MilestoneID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyDisbursed
	}

	err = tx.QueryRow(ctx, `
        UPDATE disbursements
        SET status = 'EXECUTED', executed_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND status = 'PREVIEWED'
        RETURNING executed_at
    `, d.ID).Scan(&d.ExecutedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.ErrAlreadyDisbursed
		}
		return err
	}

	for _, e := range entries {
		if err := r.applyEntry(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := r.outboxRepo.InsertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit disbursement: %w", err)
	}

	d.Status = model.DisbursementStatusExecuted
	r.logger.Info("Disbursement executed",
		zap.Int64("disbursement_id", d.ID),
		zap.Int64("milestone_id", d.MilestoneID),
		zap.Int64("total_amount", d.TotalAmount),
	)
	return nil
}

// PayoutAllocations pays one pool's committed allocation set out to its
// members. Guarded by the set's COMMITTED -> PAID CAS in the same
// transaction as the appends, so a pool pays out at most once.
func (r *LedgerRepository) PayoutAllocations(ctx context.Context, setID int64, entries []*model.LedgerTransaction, event *outbox.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerAppend("payout", time.Since(start))
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE allocation_sets
        SET status = 'PAID', updated_at = NOW()
        WHERE id = $1 AND status = 'COMMITTED'
    `, setID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyDisbursed
	}

	for _, e := range entries {
		if err := r.applyEntry(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := r.outboxRepo.InsertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payout: %w", err)
	}

	r.logger.Info("Allocation set paid out",
		zap.Int64("set_id", setID),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// applyEntry moves the wallet balance and appends the ledger row. A debit
// that would take the wallet negative aborts the whole transaction; the
// ledger never records an overdraft.
func (r *LedgerRepository) applyEntry(ctx context.Context, tx pgx.Tx, e *model.LedgerTransaction) error {
	delta := e.Amount
	if e.Direction == model.TxDirectionDebit {
		delta = -e.Amount
	}

	err := tx.QueryRow(ctx, `
        INSERT INTO wallets (id, balance) VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE
        SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
        RETURNING balance
    `, e.WalletID, delta).Scan(&e.BalanceAfter)
	if err != nil {
		return fmt.Errorf("failed to move wallet %s: %w", e.WalletID, err)
	}

	if e.Direction == model.TxDirectionDebit && e.BalanceAfter < 0 {
		return &model.InsufficientEscrowError{
			Required:  e.Amount,
			Available: e.BalanceAfter + e.Amount,
		}
	}

	err = tx.QueryRow(ctx, `
        INSERT INTO ledger_transactions
            (wallet_id, amount, direction, tx_type, balance_after, ref_id, ref_type, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `, e.WalletID, e.Amount, e.Direction, e.Type, e.BalanceAfter, e.RefID, e.RefType, model.TxStatusSuccess,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append ledger row for wallet %s: %w", e.WalletID, err)
	}

	e.Status = model.TxStatusSuccess
	return nil
}

// Deposit records the escrow funding credit for a milestone. Idempotent via
// the (wallet, direction, type, ref) uniqueness on the trail: a redelivered
// confirmation hits the conflict and reports already-applied.
func (r *LedgerRepository) Deposit(ctx context.Context, milestoneID, amount int64) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM ledger_transactions
            WHERE wallet_id = $1 AND tx_type = 'DEPOSIT' AND ref_type = 'MILESTONE' AND ref_id = $2
        )
    `, model.EscrowWalletID(milestoneID), milestoneID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	entry := &model.LedgerTransaction{
		WalletID:  model.EscrowWalletID(milestoneID),
		Amount:    amount,
		Direction: model.TxDirectionCredit,
		Type:      model.TxTypeDeposit,
		RefID:     milestoneID,
		RefType:   model.RefTypeMilestone,
	}
	if err := r.applyEntry(ctx, tx, entry); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit deposit: %w", err)
	}
	return true, nil
}

// GetWallet returns a wallet row, or a zero-balance view for an id the
// ledger has never touched.
func (r *LedgerRepository) GetWallet(ctx context.Context, walletID string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.QueryRow(ctx, `
        SELECT id, balance, updated_at FROM wallets WHERE id = $1
    `, walletID).Scan(&w.ID, &w.Balance, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return &model.Wallet{ID: walletID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListByRef returns the trail rows for a reference, oldest first.
func (r *LedgerRepository) ListByRef(ctx context.Context, refType model.RefType, refID int64) ([]*model.LedgerTransaction, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, wallet_id, amount, direction, tx_type, balance_after, ref_id, ref_type, status, created_at
        FROM ledger_transactions
        WHERE ref_type = $1 AND ref_id = $2
        ORDER BY id ASC
    `, refType, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*model.LedgerTransaction
	for rows.Next() {
		var t model.LedgerTransaction
		if err := rows.Scan(
			&t.ID,
			&t.WalletID,
			&t.Amount,
			&t.Direction,
			&t.Type,
			&t.BalanceAfter,
			&t.RefID,
			&t.RefType,
			&t.Status,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, &t)
	}

	return txs, rows.Err()
}
