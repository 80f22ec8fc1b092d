package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/outbox"
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

type fakeDisbursements struct {
	nextID int64
	byID   map[int64]*model.Disbursement
}

func newFakeDisbursements() *fakeDisbursements {
	return &fakeDisbursements{nextID: 1, byID: make(map[int64]*model.Disbursement)}
}

func (f *fakeDisbursements) UpsertPreview(_ context.Context, d *model.Disbursement) (*model.Disbursement, error) {
	for _, existing := range f.byID {
		if existing.MilestoneID != d.MilestoneID {
			continue
		}
		if existing.Status == model.DisbursementStatusExecuted {
			cp := *existing
			return &cp, nil
		}
		existing.TotalAmount = d.TotalAmount
		existing.SystemFee = d.SystemFee
		existing.MentorShare = d.MentorShare
		existing.TeamShare = d.TeamShare
		cp := *existing
		return &cp, nil
	}
	d.ID = f.nextID
	f.nextID++
	d.Status = model.DisbursementStatusPreviewed
	cp := *d
	f.byID[d.ID] = &cp
	return d, nil
}

func (f *fakeDisbursements) GetByID(_ context.Context, id int64) (*model.Disbursement, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDisbursements) GetByMilestoneID(_ context.Context, milestoneID int64) (*model.Disbursement, error) {
	for _, d := range f.byID {
		if d.MilestoneID == milestoneID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

// fakeExecutor mimics the repository's all-or-nothing transaction, including
// the exactly-once guard on the disbursement status.
type fakeExecutor struct {
	store     *fakeDisbursements
	entries   []*model.LedgerTransaction
	events    []*outbox.Event
	err       error
	onExecute func()
}

func (f *fakeExecutor) ExecuteDisbursement(_ context.Context, d *model.Disbursement, entries []*model.LedgerTransaction, event *outbox.Event) error {
	if f.err != nil {
		return f.err
	}
	if f.onExecute != nil {
		f.onExecute()
	}

	// Same uniqueness key the ledger table declares.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := fmt.Sprintf("%s|%s|%s|%s|%d", e.WalletID, e.Direction, e.Type, e.RefType, e.RefID)
		if seen[key] {
			return fmt.Errorf("duplicate ledger key %s", key)
		}
		seen[key] = true
	}

	stored := f.store.byID[d.ID]
	if stored == nil || stored.Status != model.DisbursementStatusPreviewed {
		return model.ErrAlreadyDisbursed
	}
	stored.Status = model.DisbursementStatusExecuted
	d.Status = model.DisbursementStatusExecuted
	f.entries = append(f.entries, entries...)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeExecutor) ListByRef(_ context.Context, refType model.RefType, refID int64) ([]*model.LedgerTransaction, error) {
	var out []*model.LedgerTransaction
	for _, e := range f.entries {
		if e.RefType == refType && e.RefID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeIdentity struct {
	leaders map[model.PoolRole]int64
	err     error
}

func (f *fakeIdentity) GetPoolLeader(_ context.Context, _ int64, role model.PoolRole) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.leaders[role], nil
}

type fixture struct {
	svc           *Service
	milestones    *fakeMilestones
	disbursements *fakeDisbursements
	executor      *fakeExecutor
	identity      *fakeIdentity
}

func newFixture(status model.MilestoneStatus) *fixture {
	f := &fixture{
		milestones: &fakeMilestones{milestones: map[int64]*model.Milestone{
			1: {ID: 1, ProjectID: 7, Budget: 10_000_000, Status: status},
		}},
		disbursements: newFakeDisbursements(),
		identity: &fakeIdentity{leaders: map[model.PoolRole]int64{
			model.PoolRoleMentor: 100,
			model.PoolRoleTalent: 200,
		}},
	}
	f.executor = &fakeExecutor{store: f.disbursements}
	f.svc = NewService(f.milestones, f.disbursements, f.executor, f.identity, zap.NewNop())
	return f
}

func TestPreviewComputesSplit(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)

	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_000), d.SystemFee)
	assert.Equal(t, int64(2_000_000), d.MentorShare)
	assert.Equal(t, int64(7_000_000), d.TeamShare)
	assert.Equal(t, model.DisbursementStatusPreviewed, d.Status)
}

func TestPreviewUnknownMilestone(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)

	_, err := f.svc.Preview(context.Background(), 99, 10_000_000)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPreviewRejectsNegativeAmount(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)

	_, err := f.svc.Preview(context.Background(), 1, -1)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestRePreviewReplacesAmounts(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)

	first, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	second, err := f.svc.Preview(context.Background(), 1, 333)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(33), second.SystemFee)
	assert.Equal(t, int64(66), second.MentorShare)
	assert.Equal(t, int64(234), second.TeamShare)
}

func TestExecuteReleasesEscrow(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	executed, err := f.svc.Execute(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DisbursementStatusExecuted, executed.Status)

	require.Len(t, f.executor.entries, 4)

	debit := f.executor.entries[0]
	assert.Equal(t, model.EscrowWalletID(1), debit.WalletID)
	assert.Equal(t, model.TxDirectionDebit, debit.Direction)
	assert.Equal(t, int64(10_000_000), debit.Amount)

	var credits int64
	for _, e := range f.executor.entries[1:] {
		assert.Equal(t, model.TxDirectionCredit, e.Direction)
		assert.Equal(t, model.RefTypeDisbursement, e.RefType)
		assert.Equal(t, d.ID, e.RefID)
		credits += e.Amount
	}
	assert.Equal(t, int64(10_000_000), credits)

	wallets := map[string]int64{}
	for _, e := range f.executor.entries[1:] {
		wallets[e.WalletID] = e.Amount
	}
	assert.Equal(t, int64(1_000_000), wallets[model.PlatformWalletID])
	assert.Equal(t, int64(2_000_000), wallets[model.UserWalletID(100)])
	assert.Equal(t, int64(7_000_000), wallets[model.UserWalletID(200)])

	require.Len(t, f.executor.events, 1)
	assert.Equal(t, "milestone.distributed", f.executor.events[0].RoutingKey)
}

func TestExecuteCombinesSharesForSingleLeader(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	f.identity.leaders[model.PoolRoleTalent] = 100

	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), d.ID)
	require.NoError(t, err)

	// Three entries: one person leading both pools gets one combined credit.
	require.Len(t, f.executor.entries, 3)

	wallets := map[string]int64{}
	for _, e := range f.executor.entries[1:] {
		wallets[e.WalletID] = e.Amount
	}
	assert.Equal(t, int64(1_000_000), wallets[model.PlatformWalletID])
	assert.Equal(t, int64(9_000_000), wallets[model.UserWalletID(100)])
}

func TestExecuteGuardRaceReturnsStoredRow(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	// A concurrent call wins the transaction guard between the status read
	// and the write.
	f.executor.onExecute = func() {
		f.disbursements.byID[d.ID].Status = model.DisbursementStatusExecuted
	}

	got, err := f.svc.Execute(context.Background(), d.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyDisbursed)
	require.NotNil(t, got)
	assert.Equal(t, model.DisbursementStatusExecuted, got.Status)
}

func TestExecuteTwiceReportsAlreadyDisbursed(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), d.ID)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), d.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyDisbursed)
	// No new entries beyond the first execution's four.
	assert.Len(t, f.executor.entries, 4)
}

func TestExecuteBeforeMilestonePaidFails(t *testing.T) {
	f := newFixture(model.MilestoneStatusCompleted)
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), d.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
	assert.Empty(t, f.executor.entries)
}

func TestExecuteDetectsTamperedShares(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	f.disbursements.byID[d.ID].SystemFee += 1
	f.disbursements.byID[d.ID].TeamShare -= 1

	_, err = f.svc.Execute(context.Background(), d.ID)
	assert.ErrorIs(t, err, model.ErrRoundingInvariantViolated)
	assert.Empty(t, f.executor.entries)
}

func TestExecuteFailsWithoutLeader(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	f.identity.err = errors.New("no active leader")
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), d.ID)
	assert.Error(t, err)
	assert.Empty(t, f.executor.entries)
}

func TestTrailReturnsExecutionRows(t *testing.T) {
	f := newFixture(model.MilestoneStatusPaid)
	d, err := f.svc.Preview(context.Background(), 1, 10_000_000)
	require.NoError(t, err)
	_, err = f.svc.Execute(context.Background(), d.ID)
	require.NoError(t, err)

	trail, err := f.svc.Trail(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 4)
}
