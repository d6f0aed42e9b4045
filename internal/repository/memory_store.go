package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

// MemoryStore keeps slots, holds and bookings in process memory behind a
// single mutex.  It mirrors the MySQL Store method for method, including
// the guard conditions, and backs tests and single-instance development
// runs (STORE_BACKEND=memory).  It is not shared between processes.
type MemoryStore struct {
	mu       sync.Mutex
	nextSlot uint64
	slots    map[uint64]model.Slot
	holds    map[uint64]model.Hold
	bookings map[string]model.Booking
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:    make(map[uint64]model.Slot),
		holds:    make(map[uint64]model.Hold),
		bookings: make(map[string]model.Booking),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateSlot(_ context.Context, s *model.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.slots {
		if other.Staff == s.Staff && other.StartsAt.Equal(s.StartsAt) {
			return ErrDuplicateSlot
		}
	}
	m.nextSlot++
	s.ID = m.nextSlot
	m.slots[s.ID] = cloneSlot(*s)
	return nil
}

func (m *MemoryStore) GetSlot(_ context.Context, id uint64) (model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return model.Slot{}, ErrSlotNotFound
	}
	return cloneSlot(s), nil
}

func (m *MemoryStore) ListOpenSlots(_ context.Context, from, to, now time.Time, limit int) ([]model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Slot{}
	for _, s := range m.sortedSlots() {
		if s.StartsAt.Before(from) || !s.StartsAt.Before(to) || s.Confirmed() {
			continue
		}
		if h, ok := m.holds[s.ID]; ok && h.Live(now) {
			continue
		}
		out = append(out, cloneSlot(s))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) ListSlotStates(_ context.Context, from, to time.Time) ([]model.SlotState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SlotState{}
	for _, s := range m.sortedSlots() {
		if s.StartsAt.Before(from) || !s.StartsAt.Before(to) {
			continue
		}
		out = append(out, m.stateOf(s))
	}
	return out, nil
}

func (m *MemoryStore) GetSlotState(_ context.Context, id uint64) (model.SlotState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return model.SlotState{}, ErrSlotNotFound
	}
	return m.stateOf(s), nil
}

func (m *MemoryStore) DeleteSlot(_ context.Context, id uint64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Confirmed() {
		return ErrConflict
	}
	if h, ok := m.holds[id]; ok && h.Live(now) {
		return ErrConflict
	}
	for _, b := range m.bookings {
		if b.SlotID == id && (b.Status == model.BookingPending || b.Status == model.BookingAbandoned || b.Paid || b.PaymentRef != nil) {
			return ErrConflict
		}
	}
	for bid, b := range m.bookings {
		if b.SlotID == id {
			delete(m.bookings, bid)
		}
	}
	delete(m.holds, id)
	delete(m.slots, id)
	return nil
}

func (m *MemoryStore) AcquireHold(_ context.Context, slotID uint64, now, expiresAt time.Time) (model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return model.Hold{}, ErrSlotNotFound
	}
	if s.Confirmed() {
		return model.Hold{}, ErrSlotAlreadyConfirmed
	}
	if h, ok := m.holds[slotID]; ok && h.Live(now) {
		return model.Hold{}, ErrSlotHeld
	}
	h := model.Hold{SlotID: slotID, ExpiresAt: expiresAt.UTC(), CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
	m.holds[slotID] = h
	return h, nil
}

func (m *MemoryStore) ReleaseHold(_ context.Context, slotID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.holds[slotID]
	delete(m.holds, slotID)
	return ok, nil
}

func (m *MemoryStore) ExpiredHolds(_ context.Context, now time.Time, limit int) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Hold
	for _, h := range m.holds {
		if !h.Live(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SweepHold(_ context.Context, slotID uint64, now time.Time) (model.SweepUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit := model.SweepUnit{SlotID: slotID}
	h, ok := m.holds[slotID]
	if !ok || h.Live(now) {
		return unit, nil
	}
	for id, b := range m.bookings {
		if b.SlotID == slotID && b.Abandonable() {
			b.Status = model.BookingAbandoned
			b.UpdatedAt = now.UTC()
			m.bookings[id] = b
			unit.Abandoned++
		}
	}
	delete(m.holds, slotID)
	unit.HoldReleased = true
	return unit, nil
}

func (m *MemoryStore) CreateBooking(_ context.Context, b model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[b.SlotID]; !ok {
		return ErrSlotNotFound
	}
	b.Paid = false
	b.Status = model.BookingPending
	b.PaymentRef = nil
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (m *MemoryStore) ConfirmBooking(_ context.Context, id string, slotID uint64, paymentRef string, now time.Time) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, ErrBookingNotFound
	}
	if b.SlotID != slotID {
		return cloneBooking(b), ErrCorrelationMismatch
	}
	switch b.Status {
	case model.BookingConfirmed:
		return cloneBooking(b), ErrAlreadyConfirmed
	case model.BookingAbandoned, model.BookingCancelled:
		return cloneBooking(b), ErrBookingNotPending
	}
	s := m.slots[slotID]
	if s.Confirmed() {
		return cloneBooking(b), ErrSlotAlreadyConfirmed
	}

	ref := paymentRef
	b.Paid = true
	b.Status = model.BookingConfirmed
	b.PaymentRef = &ref
	b.UpdatedAt = now.UTC()
	m.bookings[id] = b

	bid := id
	s.BookingID = &bid
	m.slots[slotID] = s
	delete(m.holds, slotID)
	return cloneBooking(b), nil
}

func (m *MemoryStore) CancelBooking(_ context.Context, id string, now time.Time) (model.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, false, ErrBookingNotFound
	}
	if b.Status == model.BookingConfirmed {
		return cloneBooking(b), false, ErrAlreadyConfirmed
	}
	if b.Status == model.BookingPending {
		b.Status = model.BookingCancelled
		b.UpdatedAt = now.UTC()
		m.bookings[id] = b
	}
	released := false
	if h, ok := m.holds[b.SlotID]; ok && !h.CreatedAt.After(b.CreatedAt) {
		delete(m.holds, b.SlotID)
		released = true
	}
	return cloneBooking(b), released, nil
}

func (m *MemoryStore) MarkAbandoned(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || !b.Abandonable() {
		return false, nil
	}
	b.Status = model.BookingAbandoned
	b.UpdatedAt = now.UTC()
	m.bookings[id] = b
	return true, nil
}

func (m *MemoryStore) AttachPaymentRef(_ context.Context, id, paymentRef string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	if b.PaymentRef == nil {
		ref := paymentRef
		b.PaymentRef = &ref
		b.UpdatedAt = now.UTC()
		m.bookings[id] = b
	}
	return nil
}

func (m *MemoryStore) StaleBookings(_ context.Context, cutoff, now time.Time, limit int) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if !b.Abandonable() || b.CreatedAt.After(cutoff) {
			continue
		}
		if h, ok := m.holds[b.SlotID]; ok && h.Live(now) && !h.CreatedAt.After(b.CreatedAt) {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PurgeAbandoned(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.bookings {
		if b.Status == model.BookingAbandoned && !b.Paid && b.PaymentRef == nil && b.CreatedAt.Before(before) {
			delete(m.bookings, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListConfirmed(_ context.Context) ([]model.ConfirmedBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ConfirmedBooking{}
	for _, b := range m.bookings {
		if b.Status != model.BookingConfirmed || !b.Paid {
			continue
		}
		out = append(out, model.ConfirmedBooking{Booking: cloneBooking(b), Slot: cloneSlot(m.slots[b.SlotID])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.StartsAt.After(out[j].Slot.StartsAt) })
	return out, nil
}

func (m *MemoryStore) sortedSlots() []model.Slot {
	out := make([]model.Slot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].Staff < out[j].Staff
	})
	return out
}

func (m *MemoryStore) stateOf(s model.Slot) model.SlotState {
	st := model.SlotState{Slot: cloneSlot(s)}
	if h, ok := m.holds[s.ID]; ok {
		hc := h
		st.Hold = &hc
	}
	if s.BookingID != nil {
		if b, ok := m.bookings[*s.BookingID]; ok {
			bc := cloneBooking(b)
			st.Booking = &bc
		}
	}
	return st
}

func cloneSlot(s model.Slot) model.Slot {
	if s.BookingID != nil {
		id := *s.BookingID
		s.BookingID = &id
	}
	return s
}

func cloneBooking(b model.Booking) model.Booking {
	if b.PaymentRef != nil {
		ref := *b.PaymentRef
		b.PaymentRef = &ref
	}
	return b
}
