// Command seed loads a demo event with a general and a presale tier into the
// database named by POSTGRES_DSN. Run migrations first.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/database"
	"ms-inventory/internal/events"
	eventsdb "ms-inventory/internal/events/db"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func main() {
	organizer := flag.String("organizer", "organizer-demo", "organizer id that owns the demo event")
	presaleCode := flag.String("presale-code", "EARLYBIRD", "code for the presale tier")
	flag.Parse()

	log := logger.NewLogger("ms-inventory-seed")
	defer log.Close()
	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	ctx := context.Background()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}

	store := &eventsdb.DB{Bun: db}
	clk := clock.NewSystem()
	svc := events.NewEventService(store, ledger.New(store, database.NewTxRunner(db), clk), nil, clk, log)

	start := clk.Now().AddDate(0, 1, 0).Truncate(time.Hour)
	maxAttendees := 600
	waitlistCap := 200
	event, err := svc.CreateEvent(ctx, events.CreateEventInput{
		OrganizerID:      *organizer,
		Name:             "Summer Fest",
		Description:      "Annual summer music festival.",
		StartDate:        start,
		EndDate:          start.Add(8 * time.Hour),
		MaxAttendees:     &maxAttendees,
		EnableWaitlist:   true,
		WaitlistCapacity: &waitlistCap,
	})
	if err != nil {
		log.Fatal("SEED", fmt.Sprintf("Create event: %v", err))
	}

	perUser := 6
	tiers := []events.TierInput{
		{
			Name:          "General Admission",
			Price:         decimal.RequireFromString("49.00"),
			ServiceFee:    decimal.RequireFromString("3.50"),
			TaxRate:       decimal.RequireFromString("0.08"),
			TotalQuantity: 500,
			MinPerOrder:   1,
			MaxPerOrder:   6,
			MaxPerUser:    &perUser,
		},
		{
			Name:          "Early Bird",
			Price:         decimal.RequireFromString("35.00"),
			TaxRate:       decimal.RequireFromString("0.08"),
			TotalQuantity: 100,
			MinPerOrder:   1,
			MaxPerOrder:   2,
			IsPresaleOnly: true,
			PresaleCode:   *presaleCode,
		},
	}
	for _, in := range tiers {
		tier, err := svc.AddTier(ctx, event.ID, in)
		if err != nil {
			log.Fatal("SEED", fmt.Sprintf("Add tier %s: %v", in.Name, err))
		}
		log.Info("SEED", fmt.Sprintf("Tier %s (%s)", tier.ID, tier.Name))
	}

	if err := svc.Publish(ctx, event.ID); err != nil {
		log.Fatal("SEED", fmt.Sprintf("Publish: %v", err))
	}
	log.Info("SEED", fmt.Sprintf("Event %s published", event.ID))
}
