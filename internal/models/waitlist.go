package models

import (
	"time"

	"github.com/uptrace/bun"
)

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "WAITING"
	WaitlistOffered   WaitlistStatus = "OFFERED"
	WaitlistConverted WaitlistStatus = "CONVERTED"
	WaitlistExpired   WaitlistStatus = "EXPIRED"
	WaitlistLeft      WaitlistStatus = "LEFT"
)

// WaitlistEntry is a buyer queued for a tier. An empty TierID means the buyer
// accepts any tier of the event.
type WaitlistEntry struct {
	bun.BaseModel `bun:"table:waitlist_entries"`

	ID             string         `bun:"id,pk" json:"id"`
	EventID        string         `bun:"event_id,notnull" json:"event_id"`
	TierID         string         `bun:"tier_id" json:"tier_id,omitempty"`
	BuyerID        string         `bun:"buyer_id,notnull" json:"buyer_id"`
	Quantity       int            `bun:"quantity,notnull" json:"quantity"`
	Position       int            `bun:"position,notnull" json:"position"`
	Status         WaitlistStatus `bun:"status,notnull" json:"status"`
	MissedOffers   int            `bun:"missed_offers,notnull" json:"missed_offers"`
	ReservationID  string         `bun:"reservation_id,nullzero" json:"reservation_id,omitempty"`
	JoinedAt       time.Time      `bun:"joined_at,notnull" json:"joined_at"`
	OfferExpiresAt *time.Time     `bun:"offer_expires_at" json:"offer_expires_at,omitempty"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Active reports whether the entry still occupies a slot in the queue.
func (w WaitlistEntry) Active() bool {
	return w.Status == WaitlistWaiting || w.Status == WaitlistOffered
}
