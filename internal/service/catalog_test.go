package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/consultation-booking/internal/apperror"
)

func TestCatalogCreate(t *testing.T) {
	f := newFixture(t)
	f.catalog.policy.StaffMembers = []string{"Anna", "Beth"}
	ctx := context.Background()

	s, err := f.catalog.Create(ctx, CreateSlotRequest{Date: "2026-05-04", StartTime: "10:00", EndTime: "11:00", Staff: " anna "})
	require.NoError(t, err)
	assert.NotZero(t, s.ID)
	assert.Equal(t, "Anna", s.Staff)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), s.StartsAt)

	_, err = f.catalog.Create(ctx, CreateSlotRequest{Date: "2026-05-04", StartTime: "10:00", EndTime: "10:30", Staff: "Anna"})
	assert.True(t, apperror.Is(err, apperror.KindConflict), "same staff, same start")

	_, err = f.catalog.Create(ctx, CreateSlotRequest{Date: "2026-05-04", StartTime: "10:00", EndTime: "11:00", Staff: "Beth"})
	assert.NoError(t, err)
}

func TestCatalogCreateValidation(t *testing.T) {
	f := newFixture(t)
	f.catalog.policy.StaffMembers = []string{"Anna"}
	ctx := context.Background()

	cases := map[string]CreateSlotRequest{
		"bad date":        {Date: "04/05/2026", StartTime: "10:00", EndTime: "11:00", Staff: "Anna"},
		"bad time":        {Date: "2026-05-04", StartTime: "10am", EndTime: "11:00", Staff: "Anna"},
		"end before":      {Date: "2026-05-04", StartTime: "11:00", EndTime: "10:00", Staff: "Anna"},
		"missing staff":   {Date: "2026-05-04", StartTime: "10:00", EndTime: "11:00"},
		"unknown staff":   {Date: "2026-05-04", StartTime: "10:00", EndTime: "11:00", Staff: "Zed"},
		"zero length":     {Date: "2026-05-04", StartTime: "10:00", EndTime: "10:00", Staff: "Anna"},
		"impossible date": {Date: "2026-02-30", StartTime: "10:00", EndTime: "11:00", Staff: "Anna"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.catalog.Create(ctx, req)
			assert.True(t, apperror.Is(err, apperror.KindValidation), "got %v", err)
		})
	}
}

func TestCatalogCreateStaffNameFitsColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, CreateSlotRequest{Date: "2026-05-04", StartTime: "10:00", EndTime: "11:00", Staff: strings.Repeat("a", 65)})
	ae, ok := apperror.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.KindValidation, ae.Kind)
	assert.Contains(t, ae.Details, "Staff")

	_, err = f.catalog.Create(ctx, CreateSlotRequest{Date: "2026-05-04", StartTime: "10:00", EndTime: "11:00", Staff: strings.Repeat("a", 64)})
	assert.NoError(t, err)
}

func TestCatalogListOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// now = 09:00; lead 2h -> floor 11:00.
	tooSoon := f.addSlot(t, t0.Add(90*time.Minute))
	atFloor := f.addSlot(t, t0.Add(2*time.Hour))
	held := f.addSlot(t, t0.Add(4*time.Hour))
	sold := f.addSlot(t, t0.Add(5*time.Hour))
	tomorrow := f.addSlot(t, t0.Add(24*time.Hour))
	f.addSlot(t, t0.Add(72*time.Hour))

	f.reserve(t, held.ID)
	r := f.reserve(t, sold.ID)
	_, err := f.ledger.Confirm(ctx, r.BookingID, sold.ID, "pi_1")
	require.NoError(t, err)

	slots, err := f.catalog.ListOpen(ctx, "2026-05-01", "2026-05-02")
	require.NoError(t, err)
	ids := make([]uint64, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uint64{atFloor.ID, tomorrow.ID}, ids)
	assert.NotContains(t, ids, tooSoon.ID)
}

func TestCatalogListOpenRoundsLeadTimeUp(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(10 * time.Minute) // 09:10 -> floor 12:00
	s11 := f.addSlot(t, t0.Add(2*time.Hour))
	s12 := f.addSlot(t, t0.Add(3*time.Hour))

	slots, err := f.catalog.ListOpen(context.Background(), "2026-05-01", "2026-05-01")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, s12.ID, slots[0].ID)
	assert.NotEqual(t, s11.ID, slots[0].ID)
}

func TestCatalogListRangeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, rng := range [][2]string{
		{"", "2026-05-02"},
		{"2026-05-01", ""},
		{"yesterday", "2026-05-02"},
		{"2026-05-03", "2026-05-02"},
		{"2026-05-01", "2026-06-15"},
	} {
		_, err := f.catalog.ListOpen(ctx, rng[0], rng[1])
		assert.True(t, apperror.Is(err, apperror.KindInvalidInput), "range %v", rng)
	}

	_, err := f.catalog.ListOpen(ctx, "2026-05-01", "2026-05-31")
	assert.NoError(t, err, "thirty days is allowed")
}

func TestCatalogListStatesHidesExpiredHolds(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	f.reserve(t, s.ID)

	states, err := f.catalog.ListStates(context.Background(), "2026-05-02", "2026-05-02")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.NotNil(t, states[0].Hold)

	f.clock.Advance(16 * time.Minute)
	states, err = f.catalog.ListStates(context.Background(), "2026-05-02", "2026-05-02")
	require.NoError(t, err)
	assert.Nil(t, states[0].Hold)
}

func TestCatalogDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, apperror.Is(f.catalog.Delete(ctx, 42), apperror.KindNotFound))

	held := f.addSlot(t, t0.Add(24*time.Hour))
	f.reserve(t, held.ID)
	assert.True(t, apperror.Is(f.catalog.Delete(ctx, held.ID), apperror.KindConflict))

	free := f.addSlot(t, t0.Add(48*time.Hour))
	require.NoError(t, f.catalog.Delete(ctx, free.ID))
	_, err := f.catalog.Available(ctx, free.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCatalogAvailabilityAndConfirmation(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	ctx := context.Background()

	ok, err := f.catalog.Available(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	r := f.reserve(t, s.ID)
	ok, err = f.catalog.Available(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	confirmed, err := f.catalog.Confirmed(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)

	_, err = f.ledger.Confirm(ctx, r.BookingID, s.ID, "pi_1")
	require.NoError(t, err)
	confirmed, err = f.catalog.Confirmed(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, confirmed)

	_, err = f.catalog.Confirmed(ctx, 999)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}
