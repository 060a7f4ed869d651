package order_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-inventory/internal/auth"
	"ms-inventory/internal/clock"
	"ms-inventory/internal/database"
	eventsdb "ms-inventory/internal/events/db"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/models"
	"ms-inventory/internal/order"
	orderdb "ms-inventory/internal/order/db"
	"ms-inventory/internal/order/order_api"
	"ms-inventory/internal/pricing"
	"ms-inventory/internal/testutil"
	ticketsdb "ms-inventory/internal/tickets/db"
	"ms-inventory/internal/utils"
	"ms-inventory/internal/waitlist"
	waitlistdb "ms-inventory/internal/waitlist/db"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newRouter(t *testing.T, event models.Event, tiers ...models.TicketTier) http.Handler {
	t.Helper()
	bunDB := testutil.NewDB(t)
	testutil.Seed(t, bunDB, event, tiers...)

	clk := clock.NewManual(now)
	log := logger.NewDiscardLogger()
	tx := database.NewTxRunner(bunDB)
	eventStore := &eventsdb.DB{Bun: bunDB}
	l := ledger.New(eventStore, tx, clk)
	wl := waitlist.NewManager(&waitlistdb.DB{Bun: bunDB}, eventStore, l, nil, clk, log,
		waitlist.Config{OfferTTL: 15 * time.Minute, MaxMissedOffers: 1})
	svc := order.NewOrderService(&orderdb.DB{Bun: bunDB}, &ticketsdb.DB{Bun: bunDB}, eventStore, l, wl, nil, nil,
		pricing.NewCalculator(pricing.DefaultPlaces), tx, clk, log, order.Config{})
	wl.SetReserver(svc)
	require.NoError(t, svc.Bootstrap(context.Background()))

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.TrustedHeader("X-User-ID"))
		order_api.NewHandler(svc, wl, log).RegisterRoutes(r)
	})
	return r
}

func call(t *testing.T, h http.Handler, method, path, user string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", user)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp utils.APIResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataID(t *testing.T, resp utils.APIResponse) string {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is an object")
	id, _ := m["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestPurchaseFlow(t *testing.T) {
	h := newRouter(t, testutil.Event("event-1", now), testutil.Tier("tier-1", "event-1", 5, now))

	rec, resp := call(t, h, http.MethodPost, "/api/events/event-1/tiers/tier-1/purchase", "buyer-1", map[string]int{"quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := dataID(t, resp)

	rec, _ = call(t, h, http.MethodGet, "/api/reservations/"+id, "buyer-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, h, http.MethodGet, "/api/reservations/"+id, "buyer-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other buyers cannot see the reservation")

	rec, resp = call(t, h, http.MethodGet, "/api/reservations", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)
	_, resp = call(t, h, http.MethodGet, "/api/reservations", "buyer-2", nil)
	assert.Empty(t, resp.Data)

	rec, _ = call(t, h, http.MethodPost, "/api/reservations/"+id+"/confirm", "buyer-1", nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec, resp = call(t, h, http.MethodGet, "/api/tiers/tier-1/availability", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, resp.Data.(map[string]interface{})["available"])

	rec, _ = call(t, h, http.MethodDelete, "/api/reservations/"+id, "buyer-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, resp = call(t, h, http.MethodGet, "/api/tiers/tier-1/availability", "buyer-1", nil)
	assert.EqualValues(t, 5, resp.Data.(map[string]interface{})["available"])
}

func TestConfirmFreeReservation(t *testing.T) {
	tier := testutil.Tier("tier-1", "event-1", 5, now)
	tier.Price = decimal.Zero
	h := newRouter(t, testutil.Event("event-1", now), tier)

	_, resp := call(t, h, http.MethodPost, "/api/events/event-1/tiers/tier-1/purchase", "buyer-1", map[string]int{"quantity": 1})
	id := dataID(t, resp)

	rec, resp := call(t, h, http.MethodPost, "/api/reservations/"+id+"/confirm", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, resp.Data, 1)

	rec, _ = call(t, h, http.MethodDelete, "/api/reservations/"+id, "buyer-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPurchaseErrors(t *testing.T) {
	event := testutil.Event("event-1", now)
	event.EnableWaitlist = true
	h := newRouter(t, event, testutil.Tier("tier-1", "event-1", 1, now))
	path := "/api/events/event-1/tiers/tier-1/purchase"

	rec, _ := call(t, h, http.MethodPost, path, "buyer-1", map[string]int{"quantity": 50})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, h, http.MethodPost, "/api/events/event-1/tiers/missing/purchase", "buyer-1", map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, h, http.MethodPost, path, "buyer-1", map[string]int{"quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := call(t, h, http.MethodPost, path, "buyer-2", map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	entryID := dataID(t, resp)

	rec, resp = call(t, h, http.MethodGet, "/api/waitlist/"+entryID, "buyer-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]interface{})["queue_position"])

	rec, _ = call(t, h, http.MethodDelete, "/api/waitlist/"+entryID, "buyer-3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = call(t, h, http.MethodDelete, "/api/waitlist/"+entryID, "buyer-2", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestJoinWaitlistAndQuote(t *testing.T) {
	event := testutil.Event("event-1", now)
	event.EnableWaitlist = true
	h := newRouter(t, event, testutil.Tier("tier-1", "event-1", 10, now))

	rec, _ := call(t, h, http.MethodPost, "/api/events/event-1/waitlist", "buyer-1", map[string]interface{}{"quantity": 2})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = call(t, h, http.MethodGet, "/api/tiers/tier-1/quote?quantity=x", "buyer-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := call(t, h, http.MethodGet, "/api/tiers/tier-1/quote?quantity=2", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", resp.Data.(map[string]interface{})["total"])

	rec, _ = call(t, h, http.MethodGet, "/api/events/missing/availability", "buyer-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
