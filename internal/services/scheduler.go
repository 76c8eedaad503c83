package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
)

// CronScheduler runs the periodic jobs of one instance. Bid sales live in
// the instance's own registry, so every instance sweeps its own expiries.
// Stock reconciliation touches shared rows and runs on the elected leader only.
type CronScheduler struct {
	cron          *cron.Cron
	sweepSpec     string
	reconcileSpec string
	bids          *BidService
	reconciler    *StockReconciler
	leader        domain.LeaderElection
	instanceID    string
	log           logger.Logger
	now           func() time.Time
}

func NewCronScheduler(
	sweepSpec, reconcileSpec string,
	bids *BidService,
	reconciler *StockReconciler,
	leader domain.LeaderElection,
	instanceID string,
	log logger.Logger,
) *CronScheduler {
	return &CronScheduler{
		cron:          cron.New(cron.WithSeconds()),
		sweepSpec:     sweepSpec,
		reconcileSpec: reconcileSpec,
		bids:          bids,
		reconciler:    reconciler,
		leader:        leader,
		instanceID:    instanceID,
		log:           log,
		now:           time.Now,
	}
}

func (s *CronScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting scheduler", "sweep_spec", s.sweepSpec, "reconcile_spec", s.reconcileSpec)

	if _, err := s.cron.AddFunc(s.sweepSpec, func() {
		s.Sweep(ctx)
	}); err != nil {
		return err
	}

	if s.reconcileSpec != "" {
		if _, err := s.cron.AddFunc(s.reconcileSpec, func() {
			s.Reconcile(ctx)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

func (s *CronScheduler) Stop() error {
	s.log.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// Sweep runs one expiry pass over this instance's bid sales and returns the
// number of sales it changed.
func (s *CronScheduler) Sweep(ctx context.Context) int {
	changed := s.bids.ExpireDue(ctx, s.now())
	if changed > 0 {
		s.log.Info("Expired bid sales", "count", changed, "instance_id", s.instanceID)
	}
	return changed
}

// Reconcile corrects persisted stock when this instance holds leadership.
// It returns the number of products corrected.
func (s *CronScheduler) Reconcile(ctx context.Context) int {
	isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to check leadership", "instance_id", s.instanceID, "error", err)
		return 0
	}
	if !isLeader {
		return 0
	}

	corrected, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.log.Error("Stock reconciliation failed", "error", err)
	}
	if corrected > 0 {
		s.log.Info("Reconciled persisted stock", "products", corrected)
	}
	return corrected
}
