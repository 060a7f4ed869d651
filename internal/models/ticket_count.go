package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketCount represents a daily count of tickets sold for a specific event/tier
type TicketCount struct {
	bun.BaseModel `bun:"table:ticket_counts"`

	ID      int64     `bun:"id,pk,autoincrement"`
	EventID string    `bun:"event_id"`
	TierID  string    `bun:"tier_id"`
	Count   int       `bun:"count"`
	Date    time.Time `bun:"date"`
}
