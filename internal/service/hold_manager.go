package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/metrics"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

// HoldManager owns the lifecycle of holds.  A live hold is never taken
// over: a second caller is refused with a Conflict until the hold is
// released or expires.  An expired hold row is replaced in place.
type HoldManager struct {
	store HoldStore
	ttl   time.Duration
	now   Clock
	log   *logger.Logger
}

func NewHoldManager(store HoldStore, ttl time.Duration, log *logger.Logger) *HoldManager {
	return &HoldManager{store: store, ttl: ttl, now: utcNow, log: log}
}

// TTL is the lifetime of a newly acquired hold.
func (m *HoldManager) TTL() time.Duration { return m.ttl }

// AcquireOrRefresh claims slotID until now+TTL.  Errors are NotFound for an
// unknown slot and Conflict when the slot is sold or held by someone else.
func (m *HoldManager) AcquireOrRefresh(ctx context.Context, slotID uint64) (model.Hold, error) {
	now := m.now()
	h, err := m.store.AcquireHold(ctx, slotID, now, now.Add(m.ttl))
	switch {
	case err == nil:
		metrics.IncHoldAcquire("acquired")
		m.log.Info("hold acquired", "slot_id", slotID, "expires_at", h.ExpiresAt)
		return h, nil
	case errors.Is(err, repository.ErrSlotNotFound):
		metrics.IncHoldAcquire("not_found")
		return model.Hold{}, apperror.NotFound("slot").WithCause(err)
	case errors.Is(err, repository.ErrSlotAlreadyConfirmed):
		metrics.IncHoldAcquire("confirmed")
		return model.Hold{}, apperror.Conflict("slot is already booked").WithCause(err)
	case errors.Is(err, repository.ErrSlotHeld):
		metrics.IncHoldAcquire("held")
		return model.Hold{}, apperror.Conflict("slot is being reserved by someone else").WithCause(err)
	default:
		metrics.IncHoldAcquire("error")
		m.log.Error("hold acquire failed", "slot_id", slotID, "error", err)
		return model.Hold{}, apperror.Storage("failed to acquire hold", err)
	}
}

// Release deletes the hold on slotID.  It reports whether a hold was
// removed; a missing hold is not an error.
func (m *HoldManager) Release(ctx context.Context, slotID uint64) (bool, error) {
	return m.release(ctx, slotID, "manual")
}

func (m *HoldManager) release(ctx context.Context, slotID uint64, reason string) (bool, error) {
	removed, err := m.store.ReleaseHold(ctx, slotID)
	if err != nil {
		m.log.Error("hold release failed", "slot_id", slotID, "reason", reason, "error", err)
		return false, apperror.Storage("failed to release hold", err)
	}
	if removed {
		metrics.IncHoldRelease(reason)
		m.log.Info("hold released", "slot_id", slotID, "reason", reason)
	}
	return removed, nil
}
