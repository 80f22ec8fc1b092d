// Package lifecycle drives milestone status transitions. All monetary moves
// stay in the ledger service; this package only decides when they are
// allowed.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
)

type MilestoneStore interface {
	GetByID(ctx context.Context, id int64) (*model.Milestone, error)
	UpdateStatusCAS(ctx context.Context, id int64, from, to model.MilestoneStatus) (bool, error)
	UpdateEndDate(ctx context.Context, id int64, endDate time.Time) error
}

type ReportCounter interface {
	CountApproved(ctx context.Context, milestoneID int64) (int, error)
	CountUnresolvedChanges(ctx context.Context, milestoneID int64) (int, error)
}

type ExtensionStore interface {
	Insert(ctx context.Context, req *model.ExtensionRequest) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.ExtensionRequest, error)
	DecideCAS(ctx context.Context, id int64, to model.ExtensionStatus, reviewReason string) (bool, error)
}

// EscrowReader checks the collaborator-held escrow funding for a milestone.
type EscrowReader interface {
	GetEscrowBalance(ctx context.Context, milestoneID int64) (int64, error)
}

// DepositRecorder books the escrow funding credit into the local ledger.
type DepositRecorder interface {
	Deposit(ctx context.Context, milestoneID, amount int64) (bool, error)
}

type Publisher interface {
	Publish(routingKey string, payload any) error
}

type Service struct {
	milestones MilestoneStore
	reports    ReportCounter
	extensions ExtensionStore
	escrow     EscrowReader
	ledger     DepositRecorder
	publisher  Publisher
	logger     *zap.Logger
}

func NewService(
	milestones MilestoneStore,
	reports ReportCounter,
	extensions ExtensionStore,
	escrow EscrowReader,
	ledger DepositRecorder,
	publisher Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		milestones: milestones,
		reports:    reports,
		extensions: extensions,
		escrow:     escrow,
		ledger:     ledger,
		publisher:  publisher,
		logger:     logger,
	}
}

// MarkDeposited confirms the company's escrow funding for a milestone.
// Legal only from PENDING_DEPOSIT; a repeat confirmation that lost the CAS
// race to an identical one is a no-op, which keeps MQ redelivery harmless.
func (s *Service) MarkDeposited(ctx context.Context, milestoneID, confirmedAmount int64) error {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return err
	}

	if m.Status == model.MilestoneStatusDeposited {
		return nil
	}
	if !m.Status.CanTransitionTo(model.MilestoneStatusDeposited) {
		return &model.InvalidTransitionError{
			Entity: "milestone",
			From:   string(m.Status),
			To:     string(model.MilestoneStatusDeposited),
		}
	}

	if confirmedAmount < m.Budget {
		return &model.InsufficientEscrowError{Required: m.Budget, Available: confirmedAmount}
	}

	// Cross-check the funding collaborator before trusting the confirmation.
	balance, err := s.escrow.GetEscrowBalance(ctx, milestoneID)
	if err != nil {
		return err
	}
	if balance < m.Budget {
		return &model.InsufficientEscrowError{Required: m.Budget, Available: balance}
	}

	if _, err := s.ledger.Deposit(ctx, milestoneID, confirmedAmount); err != nil {
		return err
	}

	ok, err := s.milestones.UpdateStatusCAS(ctx, milestoneID, model.MilestoneStatusPendingDeposit, model.MilestoneStatusDeposited)
	if err != nil {
		return err
	}
	if !ok {
		// Someone else confirmed first; the milestone is deposited either way.
		return nil
	}

	s.logger.Info("Milestone deposited",
		zap.Int64("milestone_id", milestoneID),
		zap.Int64("amount", confirmedAmount),
	)
	s.publishStatus(m, model.MilestoneStatusDeposited)
	return nil
}

// MarkCompleted closes the deliverable phase. Requires at least one APPROVED
// report and no thread left hanging in CHANGES_REQUESTED.
func (s *Service) MarkCompleted(ctx context.Context, milestoneID int64) error {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return err
	}

	if !m.Status.CanTransitionTo(model.MilestoneStatusCompleted) {
		return &model.InvalidTransitionError{
			Entity: "milestone",
			From:   string(m.Status),
			To:     string(model.MilestoneStatusCompleted),
		}
	}

	approved, err := s.reports.CountApproved(ctx, milestoneID)
	if err != nil {
		return err
	}
	unresolved, err := s.reports.CountUnresolvedChanges(ctx, milestoneID)
	if err != nil {
		return err
	}
	if approved == 0 || unresolved > 0 {
		s.logger.Warn("Milestone has incomplete deliverables",
			zap.Int64("milestone_id", milestoneID),
			zap.Int("approved", approved),
			zap.Int("unresolved", unresolved),
		)
		return model.ErrIncompleteDeliverable
	}

	ok, err := s.milestones.UpdateStatusCAS(ctx, milestoneID, model.MilestoneStatusDeposited, model.MilestoneStatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		m, err = s.milestones.GetByID(ctx, milestoneID)
		if err != nil {
			return err
		}
		return &model.InvalidTransitionError{
			Entity: "milestone",
			From:   string(m.Status),
			To:     string(model.MilestoneStatusCompleted),
		}
	}

	s.logger.Info("Milestone completed", zap.Int64("milestone_id", milestoneID))
	s.publishStatus(m, model.MilestoneStatusCompleted)
	return nil
}

// MarkPaid records the company's payment confirmation. Idempotent: repeating
// the call on a PAID milestone is a no-op.
func (s *Service) MarkPaid(ctx context.Context, milestoneID int64) error {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return err
	}

	if m.Status == model.MilestoneStatusPaid {
		return nil
	}
	if !m.Status.CanTransitionTo(model.MilestoneStatusPaid) {
		return &model.InvalidTransitionError{
			Entity: "milestone",
			From:   string(m.Status),
			To:     string(model.MilestoneStatusPaid),
		}
	}

	ok, err := s.milestones.UpdateStatusCAS(ctx, milestoneID, model.MilestoneStatusCompleted, model.MilestoneStatusPaid)
	if err != nil {
		return err
	}
	if !ok {
		m, err = s.milestones.GetByID(ctx, milestoneID)
		if err != nil {
			return err
		}
		if m.Status == model.MilestoneStatusPaid {
			return nil
		}
		return &model.InvalidTransitionError{
			Entity: "milestone",
			From:   string(m.Status),
			To:     string(model.MilestoneStatusPaid),
		}
	}

	s.logger.Info("Milestone paid", zap.Int64("milestone_id", milestoneID))
	return nil
}

// RequestExtension files a request to move the milestone end date.
func (s *Service) RequestExtension(ctx context.Context, milestoneID, requesterID int64, requestedEnd time.Time, reason string) (*model.ExtensionRequest, error) {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	req := &model.ExtensionRequest{
		MilestoneID:      milestoneID,
		RequesterID:      requesterID,
		CurrentEndDate:   m.EndDate,
		RequestedEndDate: requestedEnd,
		Reason:           reason,
		Status:           model.ExtensionStatusPending,
	}
	if _, err := s.extensions.Insert(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("Extension requested",
		zap.Int64("milestone_id", milestoneID),
		zap.Int64("request_id", req.ID),
		zap.Time("requested_end", requestedEnd),
	)
	return req, nil
}

// DecideExtension resolves a pending extension request. Approval moves the
// milestone end date; monetary state is untouched either way.
func (s *Service) DecideExtension(ctx context.Context, requestID int64, approve bool, reviewReason string) error {
	req, err := s.extensions.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	to := model.ExtensionStatusRejected
	if approve {
		to = model.ExtensionStatusApproved
	}

	if req.Status != model.ExtensionStatusPending {
		return &model.InvalidTransitionError{
			Entity: "extension_request",
			From:   string(req.Status),
			To:     string(to),
		}
	}

	ok, err := s.extensions.DecideCAS(ctx, requestID, to, reviewReason)
	if err != nil {
		return err
	}
	if !ok {
		return &model.InvalidTransitionError{
			Entity: "extension_request",
			From:   string(req.Status),
			To:     string(to),
		}
	}

	if approve {
		if err := s.milestones.UpdateEndDate(ctx, req.MilestoneID, req.RequestedEndDate); err != nil {
			return err
		}
	}

	s.logger.Info("Extension decided",
		zap.Int64("request_id", requestID),
		zap.Bool("approved", approve),
	)
	return nil
}

func (s *Service) publishStatus(m *model.Milestone, status model.MilestoneStatus) {
	routingKey := mqcontracts.RoutingKeyMilestoneDeposited
	if status == model.MilestoneStatusCompleted {
		routingKey = mqcontracts.RoutingKeyMilestoneCompleted
	}

	if err := s.publisher.Publish(routingKey, mqcontracts.MilestoneStatusPayload{
		MilestoneID: m.ID,
		ProjectID:   m.ProjectID,
		Status:      string(status),
		OccurredAt:  time.Now(),
	}); err != nil {
		s.logger.Error("Failed to publish milestone status event",
			zap.Int64("milestone_id", m.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
