package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "VALID"
	TicketCheckedIn TicketStatus = "CHECKED_IN"
	TicketRefunded  TicketStatus = "REFUNDED"
	TicketVoid      TicketStatus = "VOID"
)

// Ticket is one durable unit per paid seat. Rows are never deleted; refunds
// and voids only move the status.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            string          `bun:"id,pk" json:"id"`
	ReservationID string          `bun:"reservation_id,notnull" json:"reservation_id"`
	TierID        string          `bun:"tier_id,notnull" json:"tier_id"`
	EventID       string          `bun:"event_id,notnull" json:"event_id"`
	BuyerID       string          `bun:"buyer_id,notnull" json:"buyer_id"`
	TicketNumber  string          `bun:"ticket_number,unique,notnull" json:"ticket_number"`
	QRCode        []byte          `bun:"qr_code" json:"qr_code,omitempty"`
	Status        TicketStatus    `bun:"status,notnull" json:"status"`
	PurchasePrice decimal.Decimal `bun:"purchase_price,type:numeric,notnull" json:"purchase_price"`
	PurchasedAt   time.Time       `bun:"purchased_at,notnull" json:"purchased_at"`
	CheckedInAt   *time.Time      `bun:"checked_in_at" json:"checked_in_at,omitempty"`
	RefundedAt    *time.Time      `bun:"refunded_at" json:"refunded_at,omitempty"`
}

// TicketQRPayload is what gets encrypted into a ticket's QR code.
type TicketQRPayload struct {
	TicketID     string `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	EventID      string `json:"event_id"`
	TierID       string `json:"tier_id"`
	BuyerID      string `json:"buyer_id"`
}

func (t Ticket) QRPayload() TicketQRPayload {
	return TicketQRPayload{
		TicketID:     t.ID,
		TicketNumber: t.TicketNumber,
		EventID:      t.EventID,
		TierID:       t.TierID,
		BuyerID:      t.BuyerID,
	}
}
