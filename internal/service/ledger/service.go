// Package ledger previews and executes disbursements: the three-way split of
// a milestone budget and its release from escrow into leader wallets.
package ledger

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/service/split"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
)

type MilestoneReader interface {
	GetByID(ctx context.Context, id int64) (*model.Milestone, error)
}

type DisbursementStore interface {
	UpsertPreview(ctx context.Context, d *model.Disbursement) (*model.Disbursement, error)
	GetByID(ctx context.Context, id int64) (*model.Disbursement, error)
	GetByMilestoneID(ctx context.Context, milestoneID int64) (*model.Disbursement, error)
}

// Executor applies the atomic release: status guards, wallet moves, trail
// appends and the outbox event, all in one storage transaction.
type Executor interface {
	ExecuteDisbursement(ctx context.Context, d *model.Disbursement, entries []*model.LedgerTransaction, event *outbox.Event) error
	ListByRef(ctx context.Context, refType model.RefType, refID int64) ([]*model.LedgerTransaction, error)
}

// LeaderResolver finds the active leader of a milestone's pool.
type LeaderResolver interface {
	GetPoolLeader(ctx context.Context, milestoneID int64, role model.PoolRole) (int64, error)
}

type Service struct {
	milestones    MilestoneReader
	disbursements DisbursementStore
	executor      Executor
	identity      LeaderResolver
	logger        *zap.Logger
}

func NewService(
	milestones MilestoneReader,
	disbursements DisbursementStore,
	executor Executor,
	identity LeaderResolver,
	logger *zap.Logger,
) *Service {
	return &Service{
		milestones:    milestones,
		disbursements: disbursements,
		executor:      executor,
		identity:      identity,
		logger:        logger,
	}
}

// Preview computes and stores the split for a milestone without moving money.
// Re-previewing while still PREVIEWED replaces the amounts; once the
// disbursement is EXECUTED the stored record is returned untouched.
func (s *Service) Preview(ctx context.Context, milestoneID, totalAmount int64) (*model.Disbursement, error) {
	if _, err := s.milestones.GetByID(ctx, milestoneID); err != nil {
		return nil, err
	}

	shares, err := split.Split(totalAmount)
	if err != nil {
		return nil, err
	}

	d, err := s.disbursements.UpsertPreview(ctx, &model.Disbursement{
		MilestoneID: milestoneID,
		TotalAmount: totalAmount,
		SystemFee:   shares.SystemFee,
		MentorShare: shares.MentorShare,
		TeamShare:   shares.TeamShare,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Disbursement previewed",
		zap.Int64("milestone_id", milestoneID),
		zap.Int64("total_amount", totalAmount),
		zap.String("status", string(d.Status)),
	)
	return d, nil
}

// Execute releases a previewed disbursement. Exactly-once: the milestone
// PAID -> DISTRIBUTED guard and the disbursement PREVIEWED -> EXECUTED guard
// both sit inside the executor's transaction, so a repeat call (or a race)
// comes back as ErrAlreadyDisbursed with zero ledger writes.
func (s *Service) Execute(ctx context.Context, disbursementID int64) (*model.Disbursement, error) {
	d, err := s.disbursements.GetByID(ctx, disbursementID)
	if err != nil {
		return nil, err
	}

	if d.Status == model.DisbursementStatusExecuted {
		metrics.RecordDisbursementExecute("already_disbursed")
		return d, model.ErrAlreadyDisbursed
	}

	if !split.Verify(d) {
		metrics.RecordDisbursementExecute("failed")
		s.logger.Error("Stored disbursement shares do not match the recomputed split",
			zap.Int64("disbursement_id", d.ID),
			zap.Int64("total_amount", d.TotalAmount),
		)
		return nil, model.ErrRoundingInvariantViolated
	}

	m, err := s.milestones.GetByID(ctx, d.MilestoneID)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case model.MilestoneStatusDistributed:
		metrics.RecordDisbursementExecute("already_disbursed")
		return d, model.ErrAlreadyDisbursed
	case model.MilestoneStatusPaid:
		// release is allowed
	default:
		metrics.RecordDisbursementExecute("failed")
		return nil, &model.InvalidTransitionError{
			Entity: "milestone",
			From:   string(m.Status),
			To:     string(model.MilestoneStatusDistributed),
		}
	}

	mentorLeader, err := s.identity.GetPoolLeader(ctx, d.MilestoneID, model.PoolRoleMentor)
	if err != nil {
		metrics.RecordDisbursementExecute("failed")
		return nil, err
	}
	talentLeader, err := s.identity.GetPoolLeader(ctx, d.MilestoneID, model.PoolRoleTalent)
	if err != nil {
		metrics.RecordDisbursementExecute("failed")
		return nil, err
	}

	entries := []*model.LedgerTransaction{
		{
			WalletID:  model.EscrowWalletID(d.MilestoneID),
			Amount:    d.TotalAmount,
			Direction: model.TxDirectionDebit,
			Type:      model.TxTypeDisbursement,
			RefID:     d.ID,
			RefType:   model.RefTypeDisbursement,
		},
		{
			WalletID:  model.PlatformWalletID,
			Amount:    d.SystemFee,
			Direction: model.TxDirectionCredit,
			Type:      model.TxTypeSystemFee,
			RefID:     d.ID,
			RefType:   model.RefTypeDisbursement,
		},
	}
	if mentorLeader == talentLeader {
		// One person leading both pools gets a single combined credit; two
		// rows would collide on the ledger's uniqueness key.
		entries = append(entries, &model.LedgerTransaction{
			WalletID:  model.UserWalletID(mentorLeader),
			Amount:    d.MentorShare + d.TeamShare,
			Direction: model.TxDirectionCredit,
			Type:      model.TxTypeDisbursement,
			RefID:     d.ID,
			RefType:   model.RefTypeDisbursement,
		})
	} else {
		entries = append(entries,
			&model.LedgerTransaction{
				WalletID:  model.UserWalletID(mentorLeader),
				Amount:    d.MentorShare,
				Direction: model.TxDirectionCredit,
				Type:      model.TxTypeDisbursement,
				RefID:     d.ID,
				RefType:   model.RefTypeDisbursement,
			},
			&model.LedgerTransaction{
				WalletID:  model.UserWalletID(talentLeader),
				Amount:    d.TeamShare,
				Direction: model.TxDirectionCredit,
				Type:      model.TxTypeDisbursement,
				RefID:     d.ID,
				RefType:   model.RefTypeDisbursement,
			},
		)
	}

	event, err := outbox.NewEvent("disbursement", d.ID, mqcontracts.RoutingKeyMilestoneDistributed, mqcontracts.MilestoneDistributedPayload{
		MilestoneID:    d.MilestoneID,
		DisbursementID: d.ID,
		TotalAmount:    d.TotalAmount,
		SystemFee:      d.SystemFee,
		MentorShare:    d.MentorShare,
		TeamShare:      d.TeamShare,
	})
	if err != nil {
		metrics.RecordDisbursementExecute("failed")
		return nil, err
	}

	if err := s.executor.ExecuteDisbursement(ctx, d, entries, event); err != nil {
		if err == model.ErrAlreadyDisbursed {
			metrics.RecordDisbursementExecute("already_disbursed")
			// Lost the guard race; answer with the stored record like the
			// early status check does.
			if stored, getErr := s.disbursements.GetByID(ctx, disbursementID); getErr == nil {
				return stored, model.ErrAlreadyDisbursed
			}
			return nil, model.ErrAlreadyDisbursed
		}
		metrics.RecordDisbursementExecute("failed")
		return nil, err
	}

	metrics.RecordDisbursementExecute("executed")
	return d, nil
}

// GetByMilestone returns the stored disbursement for a milestone.
func (s *Service) GetByMilestone(ctx context.Context, milestoneID int64) (*model.Disbursement, error) {
	return s.disbursements.GetByMilestoneID(ctx, milestoneID)
}

// Trail returns the ledger rows an executed disbursement produced.
func (s *Service) Trail(ctx context.Context, disbursementID int64) ([]*model.LedgerTransaction, error) {
	return s.executor.ListByRef(ctx, model.RefTypeDisbursement, disbursementID)
}
