package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

type WaitlistOfferEvent struct {
	EntryID       string          `json:"entry_id"`
	EventID       string          `json:"event_id"`
	TierID        string          `json:"tier_id"`
	BuyerID       string          `json:"buyer_id"`
	Quantity      int             `json:"quantity"`
	ReservationID string          `json:"reservation_id"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

type ReservationConfirmedEvent struct {
	ReservationID string          `json:"reservation_id"`
	EventID       string          `json:"event_id"`
	TierID        string          `json:"tier_id"`
	BuyerID       string          `json:"buyer_id"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	TicketIDs     []string        `json:"ticket_ids"`
	TicketNumbers []string        `json:"ticket_numbers"`
}

type ReservationReleasedEvent struct {
	ReservationID   string `json:"reservation_id"`
	EventID         string `json:"event_id"`
	TierID          string `json:"tier_id"`
	BuyerID         string `json:"buyer_id"`
	Quantity        int    `json:"quantity"`
	State           string `json:"state"`
	WaitlistEntryID string `json:"waitlist_entry_id,omitempty"`
}

type TicketRefundedEvent struct {
	TicketID      string          `json:"ticket_id"`
	TicketNumber  string          `json:"ticket_number"`
	ReservationID string          `json:"reservation_id"`
	EventID       string          `json:"event_id"`
	TierID        string          `json:"tier_id"`
	BuyerID       string          `json:"buyer_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentResult is published by the payment collaborator once a capture
// settles. OccurredAt is a unix timestamp.
type PaymentResult struct {
	ReservationID string          `json:"reservation_id"`
	PaymentID     string          `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    int64           `json:"occurred_at"`
}
