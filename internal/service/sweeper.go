package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/metrics"
)

// SweepResult counts what one sweep run changed.
type SweepResult struct {
	HoldsReleased     int   `json:"holdsReleased"`
	BookingsAbandoned int64 `json:"bookingsAbandoned"`
	StaleAbandoned    int   `json:"staleAbandoned"`
	Purged            int64 `json:"purged"`
}

func (r SweepResult) empty() bool {
	return r.HoldsReleased == 0 && r.BookingsAbandoned == 0 && r.StaleAbandoned == 0 && r.Purged == 0
}

// Sweeper reclaims expired holds, abandons their unpaid bookings and
// purges old abandoned bookings.  Runs within one process are serialised;
// concurrent runs in different processes are safe because each expired
// hold is resolved in its own transaction.
type Sweeper struct {
	store  SweepStore
	ledger *BookingLedger
	policy config.BookingPolicy
	now    Clock
	log    *logger.Logger

	mu sync.Mutex
}

func NewSweeper(store SweepStore, ledger *BookingLedger, policy config.BookingPolicy, log *logger.Logger) *Sweeper {
	return &Sweeper{store: store, ledger: ledger, policy: policy, now: utcNow, log: log}
}

// RunOnce performs one full pass.  A failure on one item is logged and the
// pass continues; the joined errors are returned with the partial result.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res  SweepResult
		errs []error
	)
	now := s.now()

	expired, err := s.store.ExpiredHolds(ctx, now, s.policy.SweepBatch)
	if err != nil {
		errs = append(errs, err)
	}
	for _, h := range expired {
		unit, err := s.store.SweepHold(ctx, h.SlotID, now)
		if err != nil {
			s.log.Error("sweep hold failed", "slot_id", h.SlotID, "error", err)
			errs = append(errs, err)
			continue
		}
		if unit.HoldReleased {
			res.HoldsReleased++
			metrics.IncHoldRelease("expired")
		}
		res.BookingsAbandoned += unit.Abandoned
	}

	// Pending bookings whose hold is gone without a sweep (crash, manual
	// release) would otherwise stay pending forever.
	stale, err := s.store.StaleBookings(ctx, now.Add(-s.policy.HoldTTL), now, s.policy.SweepBatch)
	if err != nil {
		errs = append(errs, err)
	}
	for _, b := range stale {
		ok, err := s.ledger.MarkAbandoned(ctx, b.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			res.StaleAbandoned++
		}
	}

	if s.policy.AbandonedRetention > 0 {
		n, err := s.store.PurgeAbandoned(ctx, now.Add(-s.policy.AbandonedRetention))
		if err != nil {
			errs = append(errs, err)
		}
		res.Purged = n
	}

	metrics.AddSweepItems("hold_released", int64(res.HoldsReleased))
	metrics.AddSweepItems("abandoned", res.BookingsAbandoned)
	metrics.AddSweepItems("stale_abandoned", int64(res.StaleAbandoned))
	metrics.AddSweepItems("purged", res.Purged)

	err = errors.Join(errs...)
	if err != nil {
		metrics.IncSweepRun("error")
	} else {
		metrics.IncSweepRun("ok")
	}
	if !res.empty() {
		s.log.Info("sweep finished",
			"holds_released", res.HoldsReleased,
			"bookings_abandoned", res.BookingsAbandoned,
			"stale_abandoned", res.StaleAbandoned,
			"purged", res.Purged,
		)
	}
	return res, err
}

// Start runs RunOnce every SweepInterval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	t := time.NewTicker(s.policy.SweepInterval)
	defer t.Stop()
	s.log.Info("sweeper started", "interval", s.policy.SweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-t.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep run failed", "error", err)
			}
		}
	}
}
