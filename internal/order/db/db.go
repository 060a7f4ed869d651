package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-inventory/internal/database"
	"ms-inventory/internal/models"

	"github.com/uptrace/bun"
)

// DB stores reservations. State changes are guarded updates that only match
// rows still HELD, so concurrent confirm, cancel and sweep calls cannot both
// win the same reservation.
type DB struct {
	Bun *bun.DB
}

func (d *DB) Create(ctx context.Context, r *models.Reservation) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(r).Exec(ctx)
	return err
}

func (d *DB) Get(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&r).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("reservation %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) MarkConfirmed(ctx context.Context, id string, now time.Time) error {
	return d.transition(ctx, id, models.ReservationConfirmed, now)
}

func (d *DB) MarkExpired(ctx context.Context, id string, now time.Time) error {
	return d.transition(ctx, id, models.ReservationExpired, now)
}

func (d *DB) MarkCancelled(ctx context.Context, id string, now time.Time) error {
	return d.transition(ctx, id, models.ReservationCancelled, now)
}

func (d *DB) transition(ctx context.Context, id string, to models.ReservationState, now time.Time) error {
	res, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("state = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("state = ?", models.ReservationHeld).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("reservation %s -> %s: %w", id, to, models.ErrInvalidTransition)
	}
	return nil
}

// ListHeld returns every HELD reservation. Used to rebuild the ledger's
// handles at startup.
func (d *DB) ListHeld(ctx context.Context) ([]models.Reservation, error) {
	var rs []models.Reservation
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&rs).
		Where("state = ?", models.ReservationHeld).
		Order("created_at ASC").
		Scan(ctx)
	return rs, err
}

// ListExpired returns HELD reservations whose expiry is before now, oldest
// first, at most limit rows.
func (d *DB) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var rs []models.Reservation
	q := database.Conn(ctx, d.Bun).NewSelect().
		Model(&rs).
		Where("state = ?", models.ReservationHeld).
		Where("expires_at < ?", now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return rs, err
}

// SweepExpired claims HELD reservations that expired before now by moving
// them to EXPIRED, and returns the ones this call claimed. A row claimed by a
// concurrent sweep or settled by a concurrent confirm is skipped.
func (d *DB) SweepExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	candidates, err := d.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	claimed := make([]models.Reservation, 0, len(candidates))
	for _, r := range candidates {
		err := d.MarkExpired(ctx, r.ID, now)
		if errors.Is(err, models.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return claimed, err
		}
		r.State = models.ReservationExpired
		r.UpdatedAt = now
		claimed = append(claimed, r)
	}
	return claimed, nil
}

// SumHeldByBuyer returns the units the buyer currently holds on a tier.
func (d *DB) SumHeldByBuyer(ctx context.Context, tierID, buyerID string) (int, error) {
	var sum int
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.Reservation)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("tier_id = ?", tierID).
		Where("buyer_id = ?", buyerID).
		Where("state = ?", models.ReservationHeld).
		Scan(ctx, &sum)
	return sum, err
}

// ListByBuyer returns the buyer's reservations, newest first.
func (d *DB) ListByBuyer(ctx context.Context, buyerID string) ([]models.Reservation, error) {
	rs := []models.Reservation{}
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&rs).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Scan(ctx)
	return rs, err
}
