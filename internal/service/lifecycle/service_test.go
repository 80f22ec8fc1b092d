package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type fakeMilestones struct {
	milestones map[int64]*model.Milestone
}

func (f *fakeMilestones) GetByID(_ context.Context, id int64) (*model.Milestone, error) {
	m, ok := f.milestones[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMilestones) UpdateStatusCAS(_ context.Context, id int64, from, to model.MilestoneStatus) (bool, error) {
	m, ok := f.milestones[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (f *fakeMilestones) UpdateEndDate(_ context.Context, id int64, endDate time.Time) error {
	m, ok := f.milestones[id]
	if !ok {
		return model.ErrNotFound
	}
	m.EndDate = endDate
	return nil
}

type fakeReportCounts struct {
	approved   int
	unresolved int
}

func (f *fakeReportCounts) CountApproved(_ context.Context, _ int64) (int, error) {
	return f.approved, nil
}

func (f *fakeReportCounts) CountUnresolvedChanges(_ context.Context, _ int64) (int, error) {
	return f.unresolved, nil
}

type fakeExtensions struct {
	nextID   int64
	requests map[int64]*model.ExtensionRequest
}

func newFakeExtensions() *fakeExtensions {
	return &fakeExtensions{nextID: 1, requests: make(map[int64]*model.ExtensionRequest)}
}

func (f *fakeExtensions) Insert(_ context.Context, req *model.ExtensionRequest) (int64, error) {
	req.ID = f.nextID
	f.nextID++
	cp := *req
	f.requests[req.ID] = &cp
	return req.ID, nil
}

func (f *fakeExtensions) GetByID(_ context.Context, id int64) (*model.ExtensionRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeExtensions) DecideCAS(_ context.Context, id int64, to model.ExtensionStatus, reviewReason string) (bool, error) {
	req, ok := f.requests[id]
	if !ok || req.Status != model.ExtensionStatusPending {
		return false, nil
	}
	req.Status = to
	req.ReviewReason = &reviewReason
	return true, nil
}

type fakeEscrow struct {
	balance int64
	err     error
}

func (f *fakeEscrow) GetEscrowBalance(_ context.Context, _ int64) (int64, error) {
	return f.balance, f.err
}

type fakeLedger struct {
	deposits map[int64]int64
}

func (f *fakeLedger) Deposit(_ context.Context, milestoneID, amount int64) (bool, error) {
	if _, ok := f.deposits[milestoneID]; ok {
		return false, nil
	}
	f.deposits[milestoneID] = amount
	return true, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(routingKey string, _ any) error {
	f.published = append(f.published, routingKey)
	return nil
}

type fixture struct {
	svc        *Service
	milestones *fakeMilestones
	reports    *fakeReportCounts
	extensions *fakeExtensions
	escrow     *fakeEscrow
	ledger     *fakeLedger
	publisher  *fakePublisher
}

func newFixture(status model.MilestoneStatus) *fixture {
	f := &fixture{
		milestones: &fakeMilestones{milestones: map[int64]*model.Milestone{
			1: {
				ID:        1,
				ProjectID: 7,
				Budget:    10_000_000,
				EndDate:   time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
				Status:    status,
			},
		}},
		reports:    &fakeReportCounts{approved: 1},
		extensions: newFakeExtensions(),
		escrow:     &fakeEscrow{balance: 10_000_000},
		ledger:     &fakeLedger{deposits: make(map[int64]int64)},
		publisher:  &fakePublisher{},
	}
	f.svc = NewService(f.milestones, f.reports, f.extensions, f.escrow, f.ledger, f.publisher, zap.NewNop())
	return f
}

func TestMarkDeposited(t *testing.T) {
	f := newFixture(model.MilestoneStatusPendingDeposit)

	err := f.svc.MarkDeposited(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	assert.Equal(t, model.MilestoneStatusDeposited, f.milestones.milestones[1].Status)
	assert.Equal(t, int64(10_000_000), f.ledger.deposits[1])
	assert.Equal(t, []string{"milestone.deposited"}, f.publisher.published)
}

func TestMarkDepositedIdempotent(t *testing.T) {
	f := newFixture(model.MilestoneStatusPendingDeposit)

	require.NoError(t, f.svc.MarkDeposited(context.Background(), 1, 10_000_000))
	require.NoError(t, f.svc.MarkDeposited(context.Background(), 1, 10_000_000))

	assert.Len(t, f.publisher.published, 1)
}

func TestMarkDepositedRejectsShortfall(t *testing.T) {
	f := newFixture(model.MilestoneStatusPendingDeposit)

	err := f.svc.MarkDeposited(context.Background(), 1, 9_999_999)

	var escrowErr *model.InsufficientEscrowError
	require.ErrorAs(t, err, &escrowErr)
	assert.Equal(t, int64(1), escrowErr.Shortfall())
	assert.Equal(t, model.MilestoneStatusPendingDeposit, f.milestones.milestones[1].Status)
	assert.Empty(t, f.ledger.deposits)
}

func TestMarkDepositedRejectsUnderfundedEscrow(t *testing.T) {
	f := newFixture(model.MilestoneStatusPendingDeposit)
	f.escrow.balance = 5_000_000

	err := f.svc.MarkDeposited(context.Background(), 1, 10_000_000)

	var escrowErr *model.InsufficientEscrowError
	require.ErrorAs(t, err, &escrowErr)
	assert.Equal(t, int64(5_000_000), escrowErr.Shortfall())
}

func TestMarkDepositedFromLaterStatusFails(t *testing.T) {
	f := newFixture(model.MilestoneStatusCompleted)

	err := f.svc.MarkDeposited(context.Background(), 1, 10_000_000)
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
}

func TestMarkCompleted(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)

	err := f.svc.MarkCompleted(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, model.MilestoneStatusCompleted, f.milestones.milestones[1].Status)
	assert.Equal(t, []string{"milestone.completed"}, f.publisher.published)
}

func TestMarkCompletedNeedsApprovedReport(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)
	f.reports.approved = 0

	err := f.svc.MarkCompleted(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrIncompleteDeliverable)
	assert.Equal(t, model.MilestoneStatusDeposited, f.milestones.milestones[1].Status)
}

func TestMarkCompletedBlockedByUnresolvedChanges(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)
	f.reports.unresolved = 2

	err := f.svc.MarkCompleted(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrIncompleteDeliverable)
}

func TestMarkCompletedFromWrongStatus(t *testing.T) {
	f := newFixture(model.MilestoneStatusPendingDeposit)

	err := f.svc.MarkCompleted(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(model.MilestoneStatusCompleted)

	require.NoError(t, f.svc.MarkPaid(context.Background(), 1))
	assert.Equal(t, model.MilestoneStatusPaid, f.milestones.milestones[1].Status)

	// Repeating the confirmation is a no-op.
	require.NoError(t, f.svc.MarkPaid(context.Background(), 1))
}

func TestMarkPaidBeforeCompletionFails(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)

	err := f.svc.MarkPaid(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
}

func TestExtensionApprovalMovesEndDate(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)
	newEnd := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	req, err := f.svc.RequestExtension(context.Background(), 1, 42, newEnd, "scope grew")
	require.NoError(t, err)
	assert.Equal(t, model.ExtensionStatusPending, req.Status)
	assert.Equal(t, f.milestones.milestones[1].EndDate, req.CurrentEndDate)

	require.NoError(t, f.svc.DecideExtension(context.Background(), req.ID, true, "reasonable"))

	assert.Equal(t, newEnd, f.milestones.milestones[1].EndDate)
	assert.Equal(t, model.ExtensionStatusApproved, f.extensions.requests[req.ID].Status)
}

func TestExtensionRejectionKeepsEndDate(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)
	originalEnd := f.milestones.milestones[1].EndDate

	req, err := f.svc.RequestExtension(context.Background(), 1, 42, originalEnd.AddDate(0, 1, 0), "more time")
	require.NoError(t, err)

	require.NoError(t, f.svc.DecideExtension(context.Background(), req.ID, false, "deadline is firm"))

	assert.Equal(t, originalEnd, f.milestones.milestones[1].EndDate)
	assert.Equal(t, model.ExtensionStatusRejected, f.extensions.requests[req.ID].Status)
}

func TestExtensionDoubleDecisionFails(t *testing.T) {
	f := newFixture(model.MilestoneStatusDeposited)

	req, err := f.svc.RequestExtension(context.Background(), 1, 42, time.Now().AddDate(0, 1, 0), "more time")
	require.NoError(t, err)
	require.NoError(t, f.svc.DecideExtension(context.Background(), req.ID, false, "no"))

	err = f.svc.DecideExtension(context.Background(), req.ID, true, "changed my mind")
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
}
