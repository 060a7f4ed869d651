package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
	EventStatusSoldOut   EventStatus = "SOLD_OUT"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string      `bun:"id,pk" json:"id"`
	OrganizerID      string      `bun:"organizer_id" json:"organizer_id"`
	Name             string      `bun:"name,notnull" json:"name"`
	Description      string      `bun:"description" json:"description,omitempty"`
	StartDate        time.Time   `bun:"start_date,notnull" json:"start_date"`
	EndDate          time.Time   `bun:"end_date,notnull" json:"end_date"`
	Status           EventStatus `bun:"status,notnull" json:"status"`
	MaxAttendees     *int        `bun:"max_attendees" json:"max_attendees,omitempty"`
	CurrentAttendees int         `bun:"current_attendees,notnull" json:"current_attendees"`
	EnableWaitlist   bool        `bun:"enable_waitlist,notnull" json:"enable_waitlist"`
	WaitlistCapacity *int        `bun:"waitlist_capacity" json:"waitlist_capacity,omitempty"`
	CreatedAt        time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// OnSale reports whether purchases may be attempted. SOLD_OUT events still
// accept attempts so that buyers can be routed to the waitlist.
func (e Event) OnSale() bool {
	return e.Status == EventStatusPublished || e.Status == EventStatusSoldOut
}
