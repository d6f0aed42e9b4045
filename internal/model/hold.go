package model

import "time"

// Hold is a time boxed exclusive claim on a slot while a client is in
// checkout.  There is at most one hold per slot.  A hold whose ExpiresAt
// has passed is dead even if the row still exists; the sweeper removes
// it eventually.
type Hold struct {
	SlotID    uint64    `json:"slot_id"`    // holds.slot_id (primary key)
	ExpiresAt time.Time `json:"expires_at"` // holds.expires_at
	CreatedAt time.Time `json:"created_at"` // holds.created_at
	UpdatedAt time.Time `json:"updated_at"` // holds.updated_at
}

// Live reports whether the hold still blocks the slot at now.
func (h Hold) Live(now time.Time) bool { return h.ExpiresAt.After(now) }
