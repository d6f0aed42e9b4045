package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// CreateSlotRequest is the staff input for a new slot.  Date and times are
// local to the practice timezone.
type CreateSlotRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
	Staff     string `json:"staff" validate:"required,max=64"`
}

// Catalog manages slots and answers availability questions.
type Catalog struct {
	store    SlotStore
	policy   config.BookingPolicy
	loc      *time.Location
	validate *validator.Validate
	now      Clock
	log      *logger.Logger
}

func NewCatalog(store SlotStore, policy config.BookingPolicy, loc *time.Location, log *logger.Logger) *Catalog {
	if loc == nil {
		loc = time.UTC
	}
	return &Catalog{store: store, policy: policy, loc: loc, validate: validator.New(), now: utcNow, log: log}
}

// Create adds a slot.  The same staff member cannot have two slots
// starting at the same instant.
func (c *Catalog) Create(ctx context.Context, req CreateSlotRequest) (model.Slot, error) {
	req.Staff = strings.TrimSpace(req.Staff)
	if err := c.validate.Struct(req); err != nil {
		return model.Slot{}, validationError(err)
	}
	startsAt, err := time.ParseInLocation(dateLayout+" "+timeLayout, req.Date+" "+req.StartTime, c.loc)
	if err != nil {
		return model.Slot{}, apperror.Validation("invalid start", map[string]any{"startTime": err.Error()})
	}
	endsAt, err := time.ParseInLocation(dateLayout+" "+timeLayout, req.Date+" "+req.EndTime, c.loc)
	if err != nil {
		return model.Slot{}, apperror.Validation("invalid end", map[string]any{"endTime": err.Error()})
	}
	if !endsAt.After(startsAt) {
		return model.Slot{}, apperror.Validation("end time must be after start time", nil)
	}
	staff, ok := c.staffName(req.Staff)
	if !ok {
		return model.Slot{}, apperror.Validation("unknown staff member",
			map[string]any{"staff": req.Staff, "allowed": c.policy.StaffMembers})
	}

	s := model.Slot{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		StartsAt:  startsAt.UTC(),
		Staff:     staff,
		CreatedAt: c.now(),
	}
	if err := c.store.CreateSlot(ctx, &s); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlot) {
			return model.Slot{}, apperror.Conflict("staff member already has a slot at that time").WithCause(err)
		}
		return model.Slot{}, apperror.Storage("failed to create slot", err)
	}
	c.log.Info("slot created", "slot_id", s.ID, "staff", s.Staff, "starts_at", s.StartsAt)
	return s, nil
}

// staffName matches name case-insensitively against the configured staff
// list and returns the configured spelling.  An empty list accepts anyone.
func (c *Catalog) staffName(name string) (string, bool) {
	if len(c.policy.StaffMembers) == 0 {
		return name, true
	}
	for _, m := range c.policy.StaffMembers {
		if strings.EqualFold(m, name) {
			return m, true
		}
	}
	return "", false
}

// ListOpen returns reservable slots between the start and end dates
// (inclusive).  Slots starting before now+MinLeadTime, rounded up to the
// next whole hour, are left out, as are sold and held slots.
func (c *Catalog) ListOpen(ctx context.Context, start, end string) ([]model.Slot, error) {
	from, to, err := c.parseRange(start, end)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if floor := ceilHour(now.Add(c.policy.MinLeadTime)); from.Before(floor) {
		from = floor
	}
	if !from.Before(to) {
		return []model.Slot{}, nil
	}
	slots, err := c.store.ListOpenSlots(ctx, from.UTC(), to.UTC(), now, c.policy.ListingLimit)
	if err != nil {
		return nil, apperror.Storage("failed to list slots", err)
	}
	return slots, nil
}

// ListStates returns every slot in the range with its booking and hold,
// for staff.
func (c *Catalog) ListStates(ctx context.Context, start, end string) ([]model.SlotState, error) {
	from, to, err := c.parseRange(start, end)
	if err != nil {
		return nil, err
	}
	states, err := c.store.ListSlotStates(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, apperror.Storage("failed to list slots", err)
	}
	now := c.now()
	for i := range states {
		if states[i].Hold != nil && !states[i].Hold.Live(now) {
			states[i].Hold = nil
		}
	}
	return states, nil
}

// Delete removes an unsold, unheld slot.
func (c *Catalog) Delete(ctx context.Context, id uint64) error {
	err := c.store.DeleteSlot(ctx, id, c.now())
	switch {
	case err == nil:
		c.log.Info("slot deleted", "slot_id", id)
		return nil
	case errors.Is(err, repository.ErrSlotNotFound):
		return apperror.NotFound("slot").WithCause(err)
	case errors.Is(err, repository.ErrConflict):
		return apperror.Conflict("slot is booked, being reserved or has retained bookings").WithCause(err)
	default:
		return apperror.Storage("failed to delete slot", err)
	}
}

// Available reports whether the slot has no confirmed booking and no live
// hold.
func (c *Catalog) Available(ctx context.Context, id uint64) (bool, error) {
	st, err := c.store.GetSlotState(ctx, id)
	if err != nil {
		return false, slotLookupError(err)
	}
	return st.Available(c.now()), nil
}

// Confirmed reports whether a confirmed booking is linked to the slot.
func (c *Catalog) Confirmed(ctx context.Context, id uint64) (bool, error) {
	s, err := c.store.GetSlot(ctx, id)
	if err != nil {
		return false, slotLookupError(err)
	}
	return s.Confirmed(), nil
}

// CurrentYear is the calendar year at now in the practice timezone.
func (c *Catalog) CurrentYear() int { return c.now().In(c.loc).Year() }

func (c *Catalog) parseRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, apperror.InvalidInput("start and end dates are required")
	}
	from, err := time.ParseInLocation(dateLayout, start, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.InvalidInput("start must be YYYY-MM-DD")
	}
	last, err := time.ParseInLocation(dateLayout, end, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.InvalidInput("end must be YYYY-MM-DD")
	}
	if last.Before(from) {
		return time.Time{}, time.Time{}, apperror.InvalidInput("end must not be before start")
	}
	to := last.AddDate(0, 0, 1)
	if to.Sub(from) > time.Duration(c.policy.MaxListingDays+1)*24*time.Hour+time.Hour {
		return time.Time{}, time.Time{}, apperror.InvalidInput("date range too wide").
			WithDetails(map[string]any{"max_days": c.policy.MaxListingDays})
	}
	return from, to, nil
}

func slotLookupError(err error) error {
	if errors.Is(err, repository.ErrSlotNotFound) {
		return apperror.NotFound("slot").WithCause(err)
	}
	return apperror.Storage("failed to load slot", err)
}

func ceilHour(t time.Time) time.Time {
	h := t.Truncate(time.Hour)
	if h.Before(t) {
		h = h.Add(time.Hour)
	}
	return h
}
