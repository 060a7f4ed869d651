package db

import (
	"context"
	"fmt"
	"time"

	"ms-inventory/internal/database"
	"ms-inventory/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateTickets inserts every ticket of one confirmed reservation.
func (d *DB) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("ticket %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByReservation(ctx context.Context, reservationID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&tickets).
		Where("reservation_id = ?", reservationID).
		Order("ticket_number ASC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetTicketsByBuyer(ctx context.Context, buyerID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&tickets).
		Where("buyer_id = ?", buyerID).
		Order("purchased_at DESC").
		Scan(ctx)
	return tickets, err
}

// CountActiveByBuyer counts the buyer's tickets on a tier that still hold a
// seat (VALID or CHECKED_IN).
func (d *DB) CountActiveByBuyer(ctx context.Context, tierID, buyerID string) (int, error) {
	return database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("tier_id = ?", tierID).
		Where("buyer_id = ?", buyerID).
		Where("status IN (?)", bun.In([]models.TicketStatus{models.TicketValid, models.TicketCheckedIn})).
		Count(ctx)
}

// CompareAndSetStatus moves the ticket from one status to another. It reports
// false when the ticket was no longer in from.
func (d *DB) CompareAndSetStatus(ctx context.Context, id string, from, to models.TicketStatus, at time.Time) (bool, error) {
	q := database.Conn(ctx, d.Bun).NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Where("id = ?", id).
		Where("status = ?", from)
	switch to {
	case models.TicketRefunded:
		q = q.Set("refunded_at = ?", at)
	case models.TicketCheckedIn:
		q = q.Set("checked_in_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
