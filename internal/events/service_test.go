package events_test

import (
	"context"
	"testing"
	"time"

	"ms-inventory/internal/clock"
	"ms-inventory/internal/database"
	"ms-inventory/internal/events"
	eventsdb "ms-inventory/internal/events/db"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type MockWaitlist struct {
	mock.Mock
}

func (m *MockWaitlist) OnCapacityFreed(ctx context.Context, tierID string, freed int) error {
	return m.Called(tierID, freed).Error(0)
}

type fixture struct {
	svc      *events.EventService
	db       *eventsdb.DB
	ledger   *ledger.Ledger
	waitlist *MockWaitlist
}

func setup(t *testing.T) fixture {
	t.Helper()
	bunDB := testutil.NewDB(t)
	store := &eventsdb.DB{Bun: bunDB}
	clk := clock.NewManual(now)
	l := ledger.New(store, database.NewTxRunner(bunDB), clk)
	wl := &MockWaitlist{}
	t.Cleanup(func() { wl.AssertExpectations(t) })
	return fixture{
		svc:      events.NewEventService(store, l, wl, clk, logger.NewDiscardLogger()),
		db:       store,
		ledger:   l,
		waitlist: wl,
	}
}

func intPtr(v int) *int { return &v }

func gaTier(total int) events.TierInput {
	return events.TierInput{
		Name:          "General Admission",
		Price:         decimal.RequireFromString("25.00"),
		TotalQuantity: total,
		MinPerOrder:   1,
		MaxPerOrder:   4,
	}
}

func createEvent(t *testing.T, f fixture, max *int) *models.Event {
	t.Helper()
	event, err := f.svc.CreateEvent(context.Background(), events.CreateEventInput{
		OrganizerID:  "org-1",
		Name:         "Spring Concert",
		StartDate:    now.Add(30 * 24 * time.Hour),
		EndDate:      now.Add(30*24*time.Hour + 3*time.Hour),
		MaxAttendees: max,
	})
	require.NoError(t, err)
	return event
}

func TestEventLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, nil)
	assert.Equal(t, models.EventStatusDraft, event.Status)

	assert.ErrorIs(t, f.svc.Publish(ctx, event.ID), models.ErrInvalidTransition, "no tiers yet")

	_, err := f.svc.AddTier(ctx, event.ID, gaTier(100))
	require.NoError(t, err)
	require.NoError(t, f.svc.Publish(ctx, event.ID))
	assert.ErrorIs(t, f.svc.Publish(ctx, event.ID), models.ErrInvalidTransition)

	require.NoError(t, f.svc.Complete(ctx, event.ID))
	assert.ErrorIs(t, f.svc.Cancel(ctx, event.ID), models.ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.Cancel(ctx, "missing"), models.ErrNotFound)

	got, err := f.svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCompleted, got.Status)
}

func TestCreateEvent_Validation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateEvent(context.Background(), events.CreateEventInput{
		Name:      "Backwards",
		StartDate: now,
		EndDate:   now.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateEvent_RejectsZeroMaxAttendees(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateEvent(context.Background(), events.CreateEventInput{
		Name:         "Empty Room",
		StartDate:    now,
		EndDate:      now.Add(time.Hour),
		MaxAttendees: intPtr(0),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAddTier_RejectsAmountsTheSchemaWouldRound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, nil)

	cases := map[string]func(in *events.TierInput){
		"price scale":   func(in *events.TierInput) { in.Price = decimal.RequireFromString("25.005") },
		"fee scale":     func(in *events.TierInput) { in.ServiceFee = decimal.RequireFromString("1.999") },
		"price too big": func(in *events.TierInput) { in.Price = decimal.RequireFromString("10000000000") },
		"tax scale":     func(in *events.TierInput) { in.TaxRate = decimal.RequireFromString("0.08125") },
		"tax too big":   func(in *events.TierInput) { in.TaxRate = decimal.NewFromInt(100) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := gaTier(10)
			mutate(&in)
			_, err := f.svc.AddTier(ctx, event.ID, in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}

	in := gaTier(10)
	in.Price = decimal.RequireFromString("25.500")
	in.TaxRate = decimal.RequireFromString("0.0825")
	tier, err := f.svc.AddTier(ctx, event.ID, in)
	require.NoError(t, err, "trailing zeros fit the column")
	assert.Equal(t, "25.50", tier.Price.StringFixed(2))
}

func TestAddTier_RegistersWithLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, nil)

	tier, err := f.svc.AddTier(ctx, event.ID, gaTier(40))
	require.NoError(t, err)

	available, err := f.ledger.Available(tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, available)

	bad := gaTier(10)
	bad.MinPerOrder = 5
	bad.MaxPerOrder = 2
	_, err = f.svc.AddTier(ctx, event.ID, bad)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAddTier_RespectsMaxAttendees(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, intPtr(100))

	first, err := f.svc.AddTier(ctx, event.ID, gaTier(60))
	require.NoError(t, err)

	_, err = f.svc.AddTier(ctx, event.ID, gaTier(41))
	assert.ErrorIs(t, err, models.ErrAttendeeLimit)

	_, err = f.svc.AddTier(ctx, event.ID, gaTier(40))
	require.NoError(t, err)

	_, err = f.svc.ResizeTier(ctx, first.ID, 61)
	assert.ErrorIs(t, err, models.ErrAttendeeLimit)
	_, err = f.svc.ResizeTier(ctx, first.ID, 50)
	assert.NoError(t, err)
}

func TestReconfigure_DerivesSoldOutAndFeedsWaitlist(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, nil)
	tier, err := f.svc.AddTier(ctx, event.ID, gaTier(2))
	require.NoError(t, err)
	require.NoError(t, f.svc.Publish(ctx, event.ID))

	h, err := f.ledger.Reserve(ctx, tier.ID, "hold-1", 2, false, nil)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Confirm(ctx, h, nil))
	_, err = f.db.TransitionStatus(ctx, event.ID, models.EventStatusSoldOut, now, models.EventStatusPublished)
	require.NoError(t, err)

	status := func() models.EventStatus {
		got, err := f.db.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		return got.Status
	}

	f.waitlist.On("OnCapacityFreed", tier.ID, 3).Return(nil).Once()
	_, err = f.svc.ResizeTier(ctx, tier.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusPublished, status(), "new units reopen a sold out event")

	_, err = f.svc.ResizeTier(ctx, tier.ID, 4)
	require.NoError(t, err)
	_, err = f.svc.SetTierActive(ctx, tier.ID, false)
	require.NoError(t, err)

	f.waitlist.On("OnCapacityFreed", tier.ID, 2).Return(nil).Once()
	_, err = f.svc.SetTierActive(ctx, tier.ID, true)
	require.NoError(t, err)

	_, err = f.svc.ResizeTier(ctx, tier.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusSoldOut, status())
}

func TestResizeTier_NotBelowCommitted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, nil)
	tier, err := f.svc.AddTier(ctx, event.ID, gaTier(10))
	require.NoError(t, err)

	h, err := f.ledger.Reserve(ctx, tier.ID, "hold-1", 4, false, nil)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Confirm(ctx, h, nil))

	_, err = f.svc.ResizeTier(ctx, tier.ID, 3)
	assert.ErrorIs(t, err, models.ErrCapacityBelowCommitted)

	resized, err := f.svc.ResizeTier(ctx, tier.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, resized.TotalQuantity)

	stored, err := f.db.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TotalQuantity)
	assert.Equal(t, 4, stored.SoldQuantity)
}

func TestPresaleCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	event := createEvent(t, f, nil)
	tier, err := f.svc.AddTier(ctx, event.ID, gaTier(10))
	require.NoError(t, err)
	assert.True(t, events.CheckPresaleCode(*tier, ""), "public tier needs no code")

	updated, err := f.svc.SetPresaleCode(ctx, tier.ID, "EARLYBIRD")
	require.NoError(t, err)
	assert.True(t, updated.IsPresaleOnly)
	assert.NotEqual(t, "EARLYBIRD", updated.PresaleCodeHash)
	assert.True(t, events.CheckPresaleCode(updated, "EARLYBIRD"))
	assert.False(t, events.CheckPresaleCode(updated, "earlybird"))
	assert.False(t, events.CheckPresaleCode(updated, ""))

	cleared, err := f.svc.SetPresaleCode(ctx, tier.ID, "")
	require.NoError(t, err)
	assert.False(t, cleared.IsPresaleOnly)
}
