package allocation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"milestone-service/internal/client"
	"milestone-service/internal/model"
	"milestone-service/pkg/outbox"
)

type fakeDisbursements struct {
	d *model.Disbursement
}

func (f *fakeDisbursements) GetByID(_ context.Context, id int64) (*model.Disbursement, error) {
	if f.d == nil || f.d.ID != id {
		return nil, model.ErrNotFound
	}
	cp := *f.d
	return &cp, nil
}

type storedSet struct {
	set     model.AllocationSet
	members []*model.MemberAllocation
}

type fakeSets struct {
	nextID int64
	sets   map[model.PoolRole]*storedSet
}

func newFakeSets() *fakeSets {
	return &fakeSets{nextID: 1, sets: make(map[model.PoolRole]*storedSet)}
}

func (f *fakeSets) GetSet(_ context.Context, _ int64, role model.PoolRole) (*model.AllocationSet, error) {
	s, ok := f.sets[role]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := s.set
	return &cp, nil
}

func (f *fakeSets) GetMembers(_ context.Context, setID int64) ([]*model.MemberAllocation, error) {
	for _, s := range f.sets {
		if s.set.ID == setID {
			return s.members, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeSets) SaveSet(_ context.Context, set *model.AllocationSet, members []*model.MemberAllocation, expectedVersion int64) error {
	existing, ok := f.sets[set.PoolRole]
	if expectedVersion == 0 {
		if ok {
			return model.ErrConcurrentModification
		}
		set.ID = f.nextID
		f.nextID++
		set.Version = 1
	} else {
		if !ok || existing.set.Version != expectedVersion || existing.set.Status != model.AllocationSetStatusCommitted {
			return model.ErrConcurrentModification
		}
		set.ID = existing.set.ID
		set.Version = expectedVersion + 1
	}
	for _, m := range members {
		m.SetID = set.ID
	}
	f.sets[set.PoolRole] = &storedSet{set: *set, members: members}
	return nil
}

type fakePayer struct {
	sets    *fakeSets
	entries []*model.LedgerTransaction
	events  []*outbox.Event
}

func (f *fakePayer) PayoutAllocations(_ context.Context, setID int64, entries []*model.LedgerTransaction, event *outbox.Event) error {
	// Same uniqueness key the ledger table declares.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := fmt.Sprintf("%s|%s|%s|%s|%d", e.WalletID, e.Direction, e.Type, e.RefType, e.RefID)
		if seen[key] {
			return fmt.Errorf("duplicate ledger key %s", key)
		}
		seen[key] = true
	}

	for _, s := range f.sets.sets {
		if s.set.ID != setID {
			continue
		}
		if s.set.Status != model.AllocationSetStatusCommitted {
			return model.ErrAlreadyDisbursed
		}
		s.set.Status = model.AllocationSetStatusPaid
		f.entries = append(f.entries, entries...)
		f.events = append(f.events, event)
		return nil
	}
	return model.ErrNotFound
}

type fakeIdentity struct {
	members map[model.PoolRole][]client.PoolMember
}

func (f *fakeIdentity) GetPoolMembers(_ context.Context, _ int64, role model.PoolRole) ([]client.PoolMember, error) {
	return f.members[role], nil
}

func (f *fakeIdentity) GetPoolLeader(_ context.Context, _ int64, role model.PoolRole) (int64, error) {
	for _, m := range f.members[role] {
		if m.IsLeader && m.LeftAt == nil {
			return m.UserID, nil
		}
	}
	return 0, model.ErrNotFound
}

type fixture struct {
	svc      *Service
	disb     *fakeDisbursements
	sets     *fakeSets
	payer    *fakePayer
	identity *fakeIdentity
}

func newFixture(status model.DisbursementStatus) *fixture {
	f := &fixture{
		disb: &fakeDisbursements{d: &model.Disbursement{
			ID:          5,
			MilestoneID: 1,
			TotalAmount: 10_000_000,
			SystemFee:   1_000_000,
			MentorShare: 2_000_000,
			TeamShare:   7_000_000,
			Status:      status,
		}},
		sets: newFakeSets(),
		identity: &fakeIdentity{members: map[model.PoolRole][]client.PoolMember{
			model.PoolRoleTalent: {
				{UserID: 200, IsLeader: true},
				{UserID: 201},
				{UserID: 202},
			},
			model.PoolRoleMentor: {
				{UserID: 100, IsLeader: true},
				{UserID: 101},
			},
		}},
	}
	f.payer = &fakePayer{sets: f.sets}
	f.svc = NewService(f.disb, f.sets, f.payer, f.identity, zap.NewNop())
	return f
}

func TestCommitValidSplit(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	set, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{
		200: 3_000_000,
		201: 2_500_000,
		202: 1_500_000,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Version)

	stored := f.sets.sets[model.PoolRoleTalent]
	require.Len(t, stored.members, 3)
	// Rows come out ordered by user id.
	assert.Equal(t, int64(200), stored.members[0].UserID)
	assert.True(t, stored.members[0].IsLeader)
	assert.Equal(t, int64(202), stored.members[2].UserID)
}

func TestCommitRejectsOverAllocation(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{
		200: 4_000_000,
		201: 4_000_000,
	}, 0)

	var overErr *model.OverAllocationError
	require.ErrorAs(t, err, &overErr)
	assert.Equal(t, int64(1_000_000), overErr.Excess())
	assert.Empty(t, f.sets.sets)
}

func TestCommitRejectsDepartedMember(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)
	left := time.Now()
	f.identity.members[model.PoolRoleTalent][2].LeftAt = &left

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{
		202: 1_000_000,
	}, 0)

	var invalidErr *model.InvalidAllocationError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, int64(202), invalidErr.MemberID)
}

func TestCommitStaleVersionFails(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{200: 1_000_000}, 0)
	require.NoError(t, err)

	// A concurrent editor bumps the version.
	_, err = f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{200: 2_000_000}, 1)
	require.NoError(t, err)

	// The first editor retries with the version they last saw.
	_, err = f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{200: 3_000_000}, 1)
	assert.ErrorIs(t, err, model.ErrConcurrentModification)
}

func TestCommitUnknownRole(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRole("OBSERVER"), map[int64]int64{200: 1}, 0)
	assert.Error(t, err)
}

func TestPayoutMovesLeaderFundsToMembers(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{
		201: 2_500_000,
		202: 1_500_000,
	}, 0)
	require.NoError(t, err)

	require.NoError(t, f.svc.Payout(context.Background(), 5, model.PoolRoleTalent))

	require.Len(t, f.payer.entries, 3)
	debit := f.payer.entries[0]
	assert.Equal(t, model.UserWalletID(200), debit.WalletID)
	assert.Equal(t, model.TxDirectionDebit, debit.Direction)
	assert.Equal(t, int64(4_000_000), debit.Amount)

	var credited int64
	for _, e := range f.payer.entries[1:] {
		assert.Equal(t, model.TxDirectionCredit, e.Direction)
		assert.Equal(t, model.TxTypeAllocation, e.Type)
		credited += e.Amount
	}
	assert.Equal(t, int64(4_000_000), credited)

	require.Len(t, f.payer.events, 1)
	assert.Equal(t, "pool.paid_out", f.payer.events[0].RoutingKey)
}

func TestPayoutLeaderKeepsOwnShare(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{
		200: 3_000_000,
		201: 2_500_000,
		202: 1_500_000,
	}, 0)
	require.NoError(t, err)

	require.NoError(t, f.svc.Payout(context.Background(), 5, model.PoolRoleTalent))

	// The leader's wallet carries both the funding debit and their own
	// credit; the direction keeps the two rows distinct on the ledger key.
	require.Len(t, f.payer.entries, 4)
	var leaderDebit, leaderCredit int64
	for _, e := range f.payer.entries {
		if e.WalletID != model.UserWalletID(200) {
			continue
		}
		switch e.Direction {
		case model.TxDirectionDebit:
			leaderDebit = e.Amount
		case model.TxDirectionCredit:
			leaderCredit = e.Amount
		}
	}
	assert.Equal(t, int64(7_000_000), leaderDebit)
	assert.Equal(t, int64(3_000_000), leaderCredit)
	assert.Equal(t, model.AllocationSetStatusPaid, f.sets.sets[model.PoolRoleTalent].set.Status)
}

func TestPayoutTwiceReportsAlreadyDisbursed(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{201: 1_000_000}, 0)
	require.NoError(t, err)

	require.NoError(t, f.svc.Payout(context.Background(), 5, model.PoolRoleTalent))

	err = f.svc.Payout(context.Background(), 5, model.PoolRoleTalent)
	assert.ErrorIs(t, err, model.ErrAlreadyDisbursed)
	assert.Len(t, f.payer.entries, 2)
}

func TestPayoutRequiresExecutedDisbursement(t *testing.T) {
	f := newFixture(model.DisbursementStatusPreviewed)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{201: 1_000_000}, 0)
	require.NoError(t, err)

	err = f.svc.Payout(context.Background(), 5, model.PoolRoleTalent)
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
	assert.Empty(t, f.payer.entries)
}

func TestViewDerivesPercentages(t *testing.T) {
	f := newFixture(model.DisbursementStatusExecuted)

	_, err := f.svc.Commit(context.Background(), 5, model.PoolRoleTalent, map[int64]int64{
		200: 3_000_000,
		201: 2_500_000,
		202: 1_500_000,
	}, 0)
	require.NoError(t, err)

	set, members, percentages, err := f.svc.View(context.Background(), 5, model.PoolRoleTalent)
	require.NoError(t, err)
	assert.Equal(t, model.AllocationSetStatusCommitted, set.Status)
	assert.Len(t, members, 3)
	assert.Equal(t, 43, percentages[200])
	assert.Equal(t, 36, percentages[201])
	assert.Equal(t, 21, percentages[202])
}
