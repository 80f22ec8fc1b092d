package allocation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/client"
	"milestone-service/internal/model"
	"milestone-service/pkg/outbox"
)

type DisbursementReader interface {
	GetByID(ctx context.Context, id int64) (*model.Disbursement, error)
}

type SetStore interface {
	GetSet(ctx context.Context, disbursementID int64, role model.PoolRole) (*model.AllocationSet, error)
	GetMembers(ctx context.Context, setID int64) ([]*model.MemberAllocation, error)
	SaveSet(ctx context.Context, set *model.AllocationSet, members []*model.MemberAllocation, expectedVersion int64) error
}

// Payer applies the pool payout atomically: the set's COMMITTED -> PAID guard,
// the wallet moves and the outbox event share one transaction.
type Payer interface {
	PayoutAllocations(ctx context.Context, setID int64, entries []*model.LedgerTransaction, event *outbox.Event) error
}

// PoolReader resolves a milestone's pool membership.
type PoolReader interface {
	GetPoolMembers(ctx context.Context, milestoneID int64, role model.PoolRole) ([]client.PoolMember, error)
	GetPoolLeader(ctx context.Context, milestoneID int64, role model.PoolRole) (int64, error)
}

type Service struct {
	disbursements DisbursementReader
	sets          SetStore
	payer         Payer
	identity      PoolReader
	logger        *zap.Logger
}

func NewService(
	disbursements DisbursementReader,
	sets SetStore,
	payer Payer,
	identity PoolReader,
	logger *zap.Logger,
) *Service {
	return &Service{
		disbursements: disbursements,
		sets:          sets,
		payer:         payer,
		identity:      identity,
		logger:        logger,
	}
}

// Commit validates and stores a leader's member split for a pool share.
// expectedVersion 0 creates the set; any other value must match the stored
// version or the write fails with ErrConcurrentModification. Under-allocation
// is allowed and stays distributable later; over-allocation rejects the whole
// map.
func (s *Service) Commit(ctx context.Context, disbursementID int64, role model.PoolRole, allocations map[int64]int64, expectedVersion int64) (*model.AllocationSet, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown pool role %q", role)
	}

	d, err := s.disbursements.GetByID(ctx, disbursementID)
	if err != nil {
		return nil, err
	}

	poolMembers, err := s.identity.GetPoolMembers(ctx, d.MilestoneID, role)
	if err != nil {
		return nil, err
	}
	active := make(map[int64]bool, len(poolMembers))
	leaders := make(map[int64]bool)
	for _, m := range poolMembers {
		if m.LeftAt == nil {
			active[m.UserID] = true
		}
		if m.IsLeader {
			leaders[m.UserID] = true
		}
	}

	if err := Validate(d.PoolShare(role), allocations, active); err != nil {
		return nil, err
	}

	rows := make([]*model.MemberAllocation, 0, len(allocations))
	for userID, amount := range allocations {
		rows = append(rows, &model.MemberAllocation{
			DisbursementID: disbursementID,
			UserID:         userID,
			Role:           role,
			IsLeader:       leaders[userID],
			Amount:         amount,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })

	set := &model.AllocationSet{
		DisbursementID: disbursementID,
		PoolRole:       role,
		Status:         model.AllocationSetStatusCommitted,
	}
	if err := s.sets.SaveSet(ctx, set, rows, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.Info("Allocation set committed",
		zap.Int64("disbursement_id", disbursementID),
		zap.String("pool_role", string(role)),
		zap.Int64("version", set.Version),
		zap.Int("members", len(rows)),
	)
	return set, nil
}

// Payout pays the committed set out of the leader's wallet into member
// wallets. Requires an EXECUTED disbursement; a set pays at most once, and a
// repeat comes back as ErrAlreadyDisbursed with zero writes.
func (s *Service) Payout(ctx context.Context, disbursementID int64, role model.PoolRole) error {
	d, err := s.disbursements.GetByID(ctx, disbursementID)
	if err != nil {
		return err
	}
	if d.Status != model.DisbursementStatusExecuted {
		return &model.InvalidTransitionError{
			Entity: "allocation_set",
			From:   string(model.AllocationSetStatusCommitted),
			To:     string(model.AllocationSetStatusPaid),
		}
	}

	set, err := s.sets.GetSet(ctx, disbursementID, role)
	if err != nil {
		return err
	}
	if set.Status == model.AllocationSetStatusPaid {
		return model.ErrAlreadyDisbursed
	}

	members, err := s.sets.GetMembers(ctx, set.ID)
	if err != nil {
		return err
	}

	leaderID, err := s.identity.GetPoolLeader(ctx, d.MilestoneID, role)
	if err != nil {
		return err
	}

	var total int64
	entries := make([]*model.LedgerTransaction, 0, len(members)+1)
	for _, m := range members {
		if m.Amount == 0 {
			continue
		}
		total += m.Amount
		entries = append(entries, &model.LedgerTransaction{
			WalletID:  model.UserWalletID(m.UserID),
			Amount:    m.Amount,
			Direction: model.TxDirectionCredit,
			Type:      model.TxTypeAllocation,
			RefID:     set.ID,
			RefType:   model.RefTypeAllocation,
		})
	}
	if total == 0 {
		return fmt.Errorf("allocation set %d has nothing to pay out", set.ID)
	}

	// The leader's wallet funds the payout; it was credited the pool share
	// when the disbursement executed.
	entries = append([]*model.LedgerTransaction{{
		WalletID:  model.UserWalletID(leaderID),
		Amount:    total,
		Direction: model.TxDirectionDebit,
		Type:      model.TxTypeAllocation,
		RefID:     set.ID,
		RefType:   model.RefTypeAllocation,
	}}, entries...)

	event, err := outbox.NewEvent("allocation_set", set.ID, mqcontracts.RoutingKeyPoolPaidOut, mqcontracts.PoolPaidOutPayload{
		DisbursementID: disbursementID,
		PoolRole:       string(role),
		MemberCount:    len(entries) - 1,
		TotalPaid:      total,
	})
	if err != nil {
		return err
	}

	if err := s.payer.PayoutAllocations(ctx, set.ID, entries, event); err != nil {
		return err
	}

	s.logger.Info("Pool paid out",
		zap.Int64("disbursement_id", disbursementID),
		zap.String("pool_role", string(role)),
		zap.Int64("total", total),
	)
	return nil
}

// View returns the current set, its member rows and derived display
// percentages.
func (s *Service) View(ctx context.Context, disbursementID int64, role model.PoolRole) (*model.AllocationSet, []*model.MemberAllocation, map[int64]int, error) {
	d, err := s.disbursements.GetByID(ctx, disbursementID)
	if err != nil {
		return nil, nil, nil, err
	}

	set, err := s.sets.GetSet(ctx, disbursementID, role)
	if err != nil {
		return nil, nil, nil, err
	}
	members, err := s.sets.GetMembers(ctx, set.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	amounts := make(map[int64]int64, len(members))
	for _, m := range members {
		amounts[m.UserID] = m.Amount
	}

	return set, members, Percentages(d.PoolShare(role), amounts), nil
}
