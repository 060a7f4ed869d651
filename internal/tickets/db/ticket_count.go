package db

import (
	"context"
	"time"

	"ms-inventory/internal/database"
	"ms-inventory/internal/models"

	"github.com/uptrace/bun"
)

// GetTotalTicketsCount returns the number of tickets that still hold a seat.
func (d *DB) GetTotalTicketsCount(ctx context.Context) (int, error) {
	return database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("status IN (?)", bun.In([]models.TicketStatus{models.TicketValid, models.TicketCheckedIn})).
		Count(ctx)
}

// AddTicketCount adjusts the daily count for an event/tier by delta.
// Refunds pass a negative delta against the day of purchase.
func (d *DB) AddTicketCount(ctx context.Context, eventID, tierID string, day time.Time, delta int) error {
	conn := database.Conn(ctx, d.Bun)
	date := day.UTC().Truncate(24 * time.Hour)

	res, err := conn.NewUpdate().
		Model((*models.TicketCount)(nil)).
		Set("count = count + ?", delta).
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Where("date = ?", date).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	newCount := models.TicketCount{
		EventID: eventID,
		TierID:  tierID,
		Count:   delta,
		Date:    date,
	}
	_, err = conn.NewInsert().Model(&newCount).Exec(ctx)
	return err
}

// GetTicketCountsForEvent returns all daily counts for an event.
func (d *DB) GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&counts).
		Where("event_id = ?", eventID).
		Order("tier_id", "date").
		Scan(ctx)
	return counts, err
}

// GetTicketCountsForTier returns all daily counts for a tier.
func (d *DB) GetTicketCountsForTier(ctx context.Context, tierID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&counts).
		Where("tier_id = ?", tierID).
		Order("date").
		Scan(ctx)
	return counts, err
}
