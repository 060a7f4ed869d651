// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-inventory/internal/database"
	"ms-inventory/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewDB opens an in-memory SQLite database with every table created.
// The pool is pinned to one connection because each :memory: connection
// is its own database.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	t.Cleanup(func() { _ = bunDB.Close() })
	return bunDB
}

// Event returns a published event starting a week after now.
func Event(id string, now time.Time) models.Event {
	return models.Event{
		ID:          id,
		OrganizerID: "org-1",
		Name:        "Test Event " + id,
		StartDate:   now.Add(7 * 24 * time.Hour),
		EndDate:     now.Add(7*24*time.Hour + 4*time.Hour),
		Status:      models.EventStatusPublished,
		CreatedAt:   now,
	}
}

// Tier returns an active tier priced at 50.00 with no fee and no tax.
func Tier(id, eventID string, total int, now time.Time) models.TicketTier {
	return models.TicketTier{
		ID:            id,
		EventID:       eventID,
		Name:          "Tier " + id,
		Price:         decimal.RequireFromString("50.00"),
		ServiceFee:    decimal.Zero,
		TaxRate:       decimal.Zero,
		TotalQuantity: total,
		MinPerOrder:   1,
		MaxPerOrder:   10,
		IsActive:      true,
		CreatedAt:     now,
	}
}

// Seed inserts an event and its tiers.
func Seed(t *testing.T, db *bun.DB, event models.Event, tiers ...models.TicketTier) {
	t.Helper()
	ctx := context.Background()
	_, err := db.NewInsert().Model(&event).Exec(ctx)
	require.NoError(t, err)
	for i := range tiers {
		_, err := db.NewInsert().Model(&tiers[i]).Exec(ctx)
		require.NoError(t, err)
	}
}
