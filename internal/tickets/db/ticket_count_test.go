package db_test

import (
	"context"
	"testing"
	"time"

	"ms-inventory/internal/testutil"
	"ms-inventory/internal/tickets/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTicketCount(t *testing.T) {
	ticketDB := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	require.NoError(t, ticketDB.AddTicketCount(ctx, "event-1", "tier-1", now, 2))
	require.NoError(t, ticketDB.AddTicketCount(ctx, "event-1", "tier-1", now.Add(3*time.Hour), 1))
	require.NoError(t, ticketDB.AddTicketCount(ctx, "event-1", "tier-1", now, -1))

	counts, err := ticketDB.GetTicketCountsForTier(ctx, "tier-1")
	require.NoError(t, err)
	require.Len(t, counts, 1, "same day collapses into one row")
	assert.Equal(t, 2, counts[0].Count)
}

func TestGetTicketCountsForEvent(t *testing.T) {
	ticketDB := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()
	yesterday := now.AddDate(0, 0, -1)

	require.NoError(t, ticketDB.AddTicketCount(ctx, "event-1", "tier-a", now, 10))
	require.NoError(t, ticketDB.AddTicketCount(ctx, "event-1", "tier-b", now, 15))
	require.NoError(t, ticketDB.AddTicketCount(ctx, "event-1", "tier-a", yesterday, 5))
	require.NoError(t, ticketDB.AddTicketCount(ctx, "other-event", "tier-c", now, 20))

	counts, err := ticketDB.GetTicketCountsForEvent(ctx, "event-1")
	require.NoError(t, err)
	require.Len(t, counts, 3)

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	assert.Equal(t, 30, total)
	assert.Equal(t, "tier-a", counts[0].TierID)
	assert.Equal(t, 5, counts[0].Count, "ordered by tier then date")
}
