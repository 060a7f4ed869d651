package database

import (
	"context"
	"fmt"

	"ms-inventory/internal/models"

	"github.com/uptrace/bun"
)

// Models lists every table the service owns, in creation order.
func Models() []interface{} {
	return []interface{}{
		(*models.Event)(nil),
		(*models.TicketTier)(nil),
		(*models.Reservation)(nil),
		(*models.Ticket)(nil),
		(*models.WaitlistEntry)(nil),
		(*models.TicketCount)(nil),
	}
}

// CreateSchema creates the tables straight from the bun models. Used by tests
// and local SQLite runs; Postgres deployments go through the SQL migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range Models() {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}
