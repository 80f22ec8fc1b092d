package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type fakeLister struct {
	reports []*model.Report
	err     error
	cutoffs []time.Time
}

func (f *fakeLister) ListSubmittedBefore(_ context.Context, cutoff time.Time, limit int) ([]*model.Report, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reports) > limit {
		return f.reports[:limit], nil
	}
	return f.reports, nil
}

type fakeApprover struct {
	approved []int64
	notes    []string
	failFor  map[int64]error
}

func (f *fakeApprover) Approve(_ context.Context, reportID int64, note string) error {
	if err, ok := f.failFor[reportID]; ok {
		return err
	}
	f.approved = append(f.approved, reportID)
	f.notes = append(f.notes, note)
	return nil
}

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) TryAcquire(_ context.Context) bool {
	f.acquires++
	return !f.held
}

func (f *fakeLock) Release(_ context.Context) {
	f.releases++
}

func overdueReports(ids ...int64) []*model.Report {
	out := make([]*model.Report, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Report{
			ID:          id,
			MilestoneID: 1,
			Status:      model.ReportStatusSubmitted,
			SubmittedAt: time.Now().Add(-100 * time.Hour),
		})
	}
	return out
}

func newSweeper(lister *fakeLister, approver *fakeApprover, lock *fakeLock) *Sweeper {
	return NewSweeper(lister, approver, lock, 72*time.Hour, time.Minute, 100, zap.NewNop())
}

func TestRunOnceApprovesOverdueReports(t *testing.T) {
	lister := &fakeLister{reports: overdueReports(1, 2, 3)}
	approver := &fakeApprover{}
	lock := &fakeLock{}

	approved, err := newSweeper(lister, approver, lock).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, approved)
	assert.Equal(t, []int64{1, 2, 3}, approver.approved)
	for _, note := range approver.notes {
		assert.Equal(t, AutoApprovalNote, note)
	}
	assert.Equal(t, 1, lock.releases)
}

func TestRunOnceUsesSLACutoff(t *testing.T) {
	lister := &fakeLister{}
	sw := newSweeper(lister, &fakeApprover{}, &fakeLock{})

	_, err := sw.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, lister.cutoffs, 1)
	expected := time.Now().Add(-72 * time.Hour)
	assert.WithinDuration(t, expected, lister.cutoffs[0], time.Second)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	lister := &fakeLister{reports: overdueReports(1)}
	approver := &fakeApprover{}
	lock := &fakeLock{held: true}

	approved, err := newSweeper(lister, approver, lock).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, approved)
	assert.Empty(t, approver.approved)
	assert.Zero(t, lock.releases)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	lister := &fakeLister{reports: overdueReports(1, 2, 3)}
	approver := &fakeApprover{failFor: map[int64]error{2: errors.New("db down")}}

	approved, err := newSweeper(lister, approver, &fakeLock{}).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, approved)
	assert.Equal(t, []int64{1, 3}, approver.approved)
}

func TestRunOnceRespectsBatchSize(t *testing.T) {
	lister := &fakeLister{reports: overdueReports(1, 2, 3, 4, 5)}
	approver := &fakeApprover{}
	sw := NewSweeper(lister, approver, &fakeLock{}, 72*time.Hour, time.Minute, 2, zap.NewNop())

	approved, err := sw.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, approved)
}

func TestRunOnceListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	lock := &fakeLock{}

	_, err := newSweeper(lister, &fakeApprover{}, lock).RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, lock.releases)
}
