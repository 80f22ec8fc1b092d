// Package mqhandler wires MQ deliveries into the services. Handlers must be
// idempotent: the broker redelivers on requeue and the dedup marker is only
// best effort.
package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/util"
)

// DepositRecorder marks a milestone's escrow funding as confirmed.
type DepositRecorder interface {
	MarkDeposited(ctx context.Context, milestoneID, confirmedAmount int64) error
}

// DepositConfirmedHandler consumes escrow.deposit.confirmed from the payment
// gateway and advances the milestone to DEPOSITED.
type DepositConfirmedHandler struct {
	lifecycle DepositRecorder
	deduper   *util.Deduper
	logger    *zap.Logger
}

func NewDepositConfirmedHandler(lifecycle DepositRecorder, deduper *util.Deduper, logger *zap.Logger) *DepositConfirmedHandler {
	return &DepositConfirmedHandler{
		lifecycle: lifecycle,
		deduper:   deduper,
		logger:    logger,
	}
}

func (h *DepositConfirmedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.DepositConfirmedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal DepositConfirmedPayload", zap.Error(err))
		return fmt.Errorf("%w: %v", mq.ErrNonRetryable, err)
	}

	if p.MilestoneID <= 0 || p.Amount <= 0 {
		h.logger.Error("Invalid deposit confirmation",
			zap.Int64("milestone_id", p.MilestoneID),
			zap.Int64("amount", p.Amount),
			zap.String("event_id", p.EventID),
		)
		return fmt.Errorf("%w: invalid deposit confirmation", mq.ErrNonRetryable)
	}

	if p.EventID != "" && !h.deduper.AcquireOnce(ctx, "deposit_confirmed", p.EventID) {
		return nil
	}

	h.logger.Info("Handling escrow.deposit.confirmed event",
		zap.Int64("milestone_id", p.MilestoneID),
		zap.Int64("amount", p.Amount),
		zap.String("event_id", p.EventID),
	)

	err := h.lifecycle.MarkDeposited(ctx, p.MilestoneID, p.Amount)
	if err == nil {
		return nil
	}

	// A confirmation for a milestone already past PENDING_DEPOSIT is stale
	// redelivery, not a failure.
	if errors.Is(err, model.ErrInvalidStatusTransition) {
		h.logger.Warn("Stale deposit confirmation ignored",
			zap.Int64("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
		return nil
	}

	// A confirmation for an unknown milestone or an amount below the budget
	// can never succeed on retry.
	var escrowErr *model.InsufficientEscrowError
	if errors.Is(err, model.ErrNotFound) || errors.As(err, &escrowErr) {
		return fmt.Errorf("%w: %v", mq.ErrNonRetryable, err)
	}

	return err
}
