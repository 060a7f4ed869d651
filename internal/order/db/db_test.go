package db_test

import (
	"context"
	"testing"
	"time"

	"ms-inventory/internal/models"
	"ms-inventory/internal/order/db"
	"ms-inventory/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func reservation(buyer string, qty int, expiresAt time.Time) *models.Reservation {
	return &models.Reservation{
		ID:        uuid.New().String(),
		EventID:   "event-1",
		TierID:    "tier-1",
		BuyerID:   buyer,
		Quantity:  qty,
		Amount:    decimal.NewFromInt(int64(qty * 50)),
		State:     models.ReservationHeld,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	r := reservation("user-1", 2, now.Add(10*time.Minute))
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, models.ReservationHeld, got.State)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
	assert.False(t, got.IsOffer())

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransitions_OnlyFromHeld(t *testing.T) {
	store := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	r := reservation("user-1", 1, now.Add(time.Minute))
	require.NoError(t, store.Create(ctx, r))

	require.NoError(t, store.MarkConfirmed(ctx, r.ID, now))
	assert.ErrorIs(t, store.MarkExpired(ctx, r.ID, now), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.MarkCancelled(ctx, r.ID, now), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.MarkConfirmed(ctx, r.ID, now), models.ErrInvalidTransition)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, got.State)
}

func TestListExpiredAndHeld(t *testing.T) {
	store := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	old := reservation("user-1", 1, now.Add(-2*time.Minute))
	older := reservation("user-2", 1, now.Add(-5*time.Minute))
	fresh := reservation("user-3", 1, now.Add(5*time.Minute))
	for _, r := range []*models.Reservation{old, older, fresh} {
		require.NoError(t, store.Create(ctx, r))
	}

	expired, err := store.ListExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, older.ID, expired[0].ID)

	limited, err := store.ListExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.MarkExpired(ctx, older.ID, now))
	held, err := store.ListHeld(ctx)
	require.NoError(t, err)
	assert.Len(t, held, 2)
}

func TestSumHeldByBuyer(t *testing.T) {
	store := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	a := reservation("user-1", 2, now.Add(time.Minute))
	b := reservation("user-1", 3, now.Add(time.Minute))
	c := reservation("user-2", 4, now.Add(time.Minute))
	for _, r := range []*models.Reservation{a, b, c} {
		require.NoError(t, store.Create(ctx, r))
	}
	require.NoError(t, store.MarkCancelled(ctx, b.ID, now))

	sum, err := store.SumHeldByBuyer(ctx, "tier-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum)

	sum, err = store.SumHeldByBuyer(ctx, "tier-1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, sum)
}

func TestSweepExpired_ClaimsEachRowOnce(t *testing.T) {
	store := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	expired := reservation("user-1", 1, now.Add(-time.Minute))
	confirmed := reservation("user-2", 1, now.Add(-time.Minute))
	fresh := reservation("user-3", 1, now.Add(time.Minute))
	for _, r := range []*models.Reservation{expired, confirmed, fresh} {
		require.NoError(t, store.Create(ctx, r))
	}
	require.NoError(t, store.MarkConfirmed(ctx, confirmed.ID, now))

	claimed, err := store.SweepExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, expired.ID, claimed[0].ID)
	assert.Equal(t, models.ReservationExpired, claimed[0].State)

	again, err := store.SweepExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestListByBuyer(t *testing.T) {
	store := &db.DB{Bun: testutil.NewDB(t)}
	ctx := context.Background()

	older := reservation("user-1", 1, now.Add(time.Minute))
	newer := reservation("user-1", 2, now.Add(time.Minute))
	newer.CreatedAt = now.Add(time.Second)
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))
	require.NoError(t, store.Create(ctx, reservation("user-2", 1, now.Add(time.Minute))))

	got, err := store.ListByBuyer(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)

	got, err = store.ListByBuyer(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}
