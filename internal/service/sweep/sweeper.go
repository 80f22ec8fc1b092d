// Package sweep auto-approves reports whose review window has lapsed.
// Non-response within the window counts as approval, so the deadline
// cannot be gamed by simply never reviewing.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/metrics"
)

const AutoApprovalNote = "Auto-approved: review window expired"

// ReportLister scans reports still awaiting a decision past a cutoff.
type ReportLister interface {
	ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Report, error)
}

// Approver applies the approval decision. The sweep reuses the same workflow
// as a human reviewer, so idempotency and event publication behave the same.
type Approver interface {
	Approve(ctx context.Context, reportID int64, note string) error
}

// Lock keeps the sweep a singleton across nodes.
type Lock interface {
	TryAcquire(ctx context.Context) bool
	Release(ctx context.Context)
}

type Sweeper struct {
	reports   ReportLister
	approver  Approver
	lock      Lock
	sla       time.Duration
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewSweeper(reports ReportLister, approver Approver, lock Lock, sla, interval time.Duration, batchSize int, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		reports:   reports,
		approver:  approver,
		lock:      lock,
		sla:       sla,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start runs sweep cycles on the configured interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Report auto-approval sweep started",
		zap.Duration("interval", s.interval),
		zap.Duration("sla", s.sla),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Report auto-approval sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Sweep cycle failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one sweep cycle and returns how many reports it approved.
// If another node holds the lock the cycle is skipped, not failed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.lock.TryAcquire(ctx) {
		return 0, nil
	}
	defer s.lock.Release(ctx)

	start := time.Now()
	defer func() {
		metrics.SweepCycleDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-s.sla)
	reports, err := s.reports.ListSubmittedBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	approved := 0
	for _, rep := range reports {
		if err := s.approver.Approve(ctx, rep.ID, AutoApprovalNote); err != nil {
			// One stuck report must not starve the rest of the batch.
			s.logger.Error("Failed to auto-approve report",
				zap.Int64("report_id", rep.ID),
				zap.Int64("milestone_id", rep.MilestoneID),
				zap.Error(err),
			)
			continue
		}
		approved++
		metrics.SweepAutoApprovedCount.Inc()
	}

	if approved > 0 {
		s.logger.Info("Sweep cycle finished",
			zap.Int("scanned", len(reports)),
			zap.Int("approved", approved),
			zap.Time("cutoff", cutoff),
		)
	}
	return approved, nil
}
