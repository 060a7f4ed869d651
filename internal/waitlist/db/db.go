package db

import (
	"context"
	"fmt"

	"ms-inventory/internal/database"
	"ms-inventory/internal/models"

	"github.com/uptrace/bun"
)

var activeStatuses = []models.WaitlistStatus{models.WaitlistWaiting, models.WaitlistOffered}

type DB struct {
	Bun *bun.DB
}

func (d *DB) Create(ctx context.Context, e *models.WaitlistEntry) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(e).Exec(ctx)
	return err
}

func (d *DB) Get(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&e).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("waitlist entry %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindActive returns the buyer's WAITING or OFFERED entry in a queue, or nil.
func (d *DB) FindActive(ctx context.Context, eventID, tierID, buyerID string) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&e).
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Where("buyer_id = ?", buyerID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CountActive counts WAITING and OFFERED entries across all of an event's queues.
func (d *DB) CountActive(ctx context.Context, eventID string) (int, error) {
	return database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.WaitlistEntry)(nil)).
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Count(ctx)
}

// NextPosition returns the position a new entry of the queue gets.
func (d *DB) NextPosition(ctx context.Context, eventID, tierID string) (int, error) {
	var max int
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.WaitlistEntry)(nil)).
		ColumnExpr("COALESCE(MAX(position), 0)").
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// ListWaiting returns WAITING entries of a queue in promotion order: fewer
// missed offers first, then by position.
func (d *DB) ListWaiting(ctx context.Context, eventID, tierID string, limit int) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Where("status = ?", models.WaitlistWaiting).
		Order("missed_offers ASC", "position ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return entries, err
}

// Transition writes e's mutable fields if the row is still in status from.
func (d *DB) Transition(ctx context.Context, e *models.WaitlistEntry, from models.WaitlistStatus) error {
	res, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model(e).
		Column("status", "missed_offers", "reservation_id", "offer_expires_at", "updated_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("waitlist entry %s %s -> %s: %w", e.ID, from, e.Status, models.ErrInvalidTransition)
	}
	return nil
}
