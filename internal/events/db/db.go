package db

import (
	"context"
	"fmt"
	"time"

	"ms-inventory/internal/database"
	"ms-inventory/internal/models"

	"github.com/uptrace/bun"
)

// DB stores events and their ticket tiers. Every method joins the
// transaction carried by ctx, if any.
type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(event).Exec(ctx)
	return err
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&events).
		Order("start_date ASC").
		Scan(ctx)
	return events, err
}

// UpdateEvent writes the editable fields. Status and attendee count have
// their own guarded writers.
func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	_, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model(event).
		Column("name", "description", "start_date", "end_date", "max_attendees", "enable_waitlist", "waitlist_capacity", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

// TransitionStatus moves the event from one of from to to. It reports false
// when the row was not in any of the expected states.
func (d *DB) TransitionStatus(ctx context.Context, id string, to models.EventStatus, now time.Time, from ...models.EventStatus) (bool, error) {
	res, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AddAttendees adjusts current_attendees by delta in a single statement.
func (d *DB) AddAttendees(ctx context.Context, id string, delta int) error {
	res, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model((*models.Event)(nil)).
		Set("current_attendees = current_attendees + ?", delta).
		Where("id = ?", id).
		Where("current_attendees + ? >= 0", delta).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("event %s attendees %+d: %w", id, delta, models.ErrInvalidTransition)
	}
	return nil
}

func (d *DB) CreateTier(ctx context.Context, tier *models.TicketTier) error {
	_, err := database.Conn(ctx, d.Bun).NewInsert().Model(tier).Exec(ctx)
	return err
}

func (d *DB) GetTier(ctx context.Context, id string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&tier).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("tier %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (d *DB) ListTiers(ctx context.Context) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&tiers).
		Order("event_id ASC", "id ASC").
		Scan(ctx)
	return tiers, err
}

func (d *DB) ListTiersByEvent(ctx context.Context, eventID string) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model(&tiers).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Scan(ctx)
	return tiers, err
}

// SumTierCapacity returns the summed total_quantity of the event's tiers,
// skipping excludeID.
func (d *DB) SumTierCapacity(ctx context.Context, eventID, excludeID string) (int, error) {
	var sum int
	err := database.Conn(ctx, d.Bun).NewSelect().
		Model((*models.TicketTier)(nil)).
		ColumnExpr("COALESCE(SUM(total_quantity), 0)").
		Where("event_id = ?", eventID).
		Where("id != ?", excludeID).
		Scan(ctx, &sum)
	return sum, err
}

// UpdateTierConfig writes everything except the counters, which only the
// ledger writes through SaveCounters.
func (d *DB) UpdateTierConfig(ctx context.Context, tier models.TicketTier) error {
	_, err := database.Conn(ctx, d.Bun).NewUpdate().
		Model(&tier).
		Column("name", "price", "service_fee", "tax_rate", "total_quantity", "min_per_order", "max_per_order",
			"max_per_user", "is_presale_only", "presale_code_hash", "sales_start_date", "sales_end_date", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

// SaveCounters replaces the tier's capacity counters, but only while the row
// still holds from. It returns ErrCounterConflict when another writer moved
// them first.
func (d *DB) SaveCounters(ctx context.Context, tierID string, from, to models.TierCounters) error {
	conn := database.Conn(ctx, d.Bun)
	res, err := conn.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("total_quantity = ?", to.Total).
		Set("sold_quantity = ?", to.Sold).
		Set("reserved_quantity = ?", to.Reserved).
		Where("id = ?", tierID).
		Where("total_quantity = ?", from.Total).
		Where("sold_quantity = ?", from.Sold).
		Where("reserved_quantity = ?", from.Reserved).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	exists, err := conn.NewSelect().
		Model((*models.TicketTier)(nil)).
		Where("id = ?", tierID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("save counters for tier %s: %w", tierID, models.ErrNotFound)
	}
	return fmt.Errorf("save counters for tier %s: %w", tierID, models.ErrCounterConflict)
}
