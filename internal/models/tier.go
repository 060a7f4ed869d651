package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TicketTier is a priced category of tickets for one event. SoldQuantity and
// ReservedQuantity are owned by the ledger; every other component treats them
// as read-only.
type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	ID               string          `bun:"id,pk" json:"id"`
	EventID          string          `bun:"event_id,notnull" json:"event_id"`
	Name             string          `bun:"name,notnull" json:"name"`
	Price            decimal.Decimal `bun:"price,type:numeric,notnull" json:"price"`
	ServiceFee       decimal.Decimal `bun:"service_fee,type:numeric,notnull" json:"service_fee"`
	TaxRate          decimal.Decimal `bun:"tax_rate,type:numeric,notnull" json:"tax_rate"`
	TotalQuantity    int             `bun:"total_quantity,notnull" json:"total_quantity"`
	SoldQuantity     int             `bun:"sold_quantity,notnull" json:"sold_quantity"`
	ReservedQuantity int             `bun:"reserved_quantity,notnull" json:"reserved_quantity"`
	MinPerOrder      int             `bun:"min_per_order,notnull" json:"min_per_order"`
	MaxPerOrder      int             `bun:"max_per_order,notnull" json:"max_per_order"`
	MaxPerUser       *int            `bun:"max_per_user" json:"max_per_user,omitempty"`
	IsPresaleOnly    bool            `bun:"is_presale_only,notnull" json:"is_presale_only"`
	PresaleCodeHash  string          `bun:"presale_code_hash" json:"-"`
	SalesStartDate   *time.Time      `bun:"sales_start_date" json:"sales_start_date,omitempty"`
	SalesEndDate     *time.Time      `bun:"sales_end_date" json:"sales_end_date,omitempty"`
	IsActive         bool            `bun:"is_active,notnull" json:"is_active"`
	CreatedAt        time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time       `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// InSalesWindow reports whether now falls inside [SalesStartDate, SalesEndDate].
// Unset bounds are open.
func (t TicketTier) InSalesWindow(now time.Time) bool {
	if t.SalesStartDate != nil && now.Before(*t.SalesStartDate) {
		return false
	}
	if t.SalesEndDate != nil && now.After(*t.SalesEndDate) {
		return false
	}
	return true
}

// TierCounters is the capacity state of a tier as stored. Writers compare
// against the pair they last read before replacing it.
type TierCounters struct {
	Total    int
	Sold     int
	Reserved int
}

func (t TicketTier) Counters() TierCounters {
	return TierCounters{Total: t.TotalQuantity, Sold: t.SoldQuantity, Reserved: t.ReservedQuantity}
}

// TierSnapshot is a read-only view of a tier's counters.
type TierSnapshot struct {
	TierID      string  `json:"tier_id"`
	EventID     string  `json:"event_id"`
	Total       int     `json:"total"`
	Sold        int     `json:"sold"`
	Reserved    int     `json:"reserved"`
	Available   int     `json:"available"`
	SoldPercent float64 `json:"sold_percent"`
	Active      bool    `json:"active"`
}
