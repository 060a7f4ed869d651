package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type ReservationState string

const (
	ReservationHeld      ReservationState = "HELD"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationExpired   ReservationState = "EXPIRED"
	ReservationCancelled ReservationState = "CANCELLED"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID              string           `bun:"id,pk" json:"id"`
	EventID         string           `bun:"event_id,notnull" json:"event_id"`
	TierID          string           `bun:"tier_id,notnull" json:"tier_id"`
	BuyerID         string           `bun:"buyer_id,notnull" json:"buyer_id"`
	Quantity        int              `bun:"quantity,notnull" json:"quantity"`
	Amount          decimal.Decimal  `bun:"amount,type:numeric,notnull" json:"amount"`
	State           ReservationState `bun:"state,notnull" json:"state"`
	WaitlistEntryID string           `bun:"waitlist_entry_id,nullzero" json:"waitlist_entry_id,omitempty"`
	CreatedAt       time.Time        `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt       time.Time        `bun:"expires_at,notnull" json:"expires_at"`
	UpdatedAt       time.Time        `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// IsOffer reports whether the reservation was created for a waitlisted buyer.
func (r Reservation) IsOffer() bool {
	return r.WaitlistEntryID != ""
}
