package event_api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-inventory/internal/auth"
	"ms-inventory/internal/clock"
	"ms-inventory/internal/database"
	"ms-inventory/internal/events"
	eventsdb "ms-inventory/internal/events/db"
	"ms-inventory/internal/events/event_api"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	bunDB := testutil.NewDB(t)
	store := &eventsdb.DB{Bun: bunDB}
	clk := clock.NewManual(now)
	l := ledger.New(store, database.NewTxRunner(bunDB), clk)
	log := logger.NewDiscardLogger()

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.TrustedHeader("X-User-ID"))
		event_api.NewHandler(events.NewEventService(store, l, nil, clk, log), log).RegisterRoutes(r)
	})
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path, user string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", user)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestOrganizerFlow(t *testing.T) {
	h := newRouter(t)

	rec, env := do(t, h, http.MethodPost, "/api/admin/events", "org-1", map[string]interface{}{
		"name":       "Harbour Nights",
		"start_date": now.Add(14 * 24 * time.Hour),
		"end_date":   now.Add(14*24*time.Hour + 4*time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var event struct {
		ID          string `json:"id"`
		OrganizerID string `json:"organizer_id"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.Equal(t, "org-1", event.OrganizerID)
	assert.Equal(t, "DRAFT", event.Status)

	rec, _ = do(t, h, http.MethodPost, "/api/admin/events/"+event.ID+"/publish", "org-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "publishing without tiers")

	rec, env = do(t, h, http.MethodPost, "/api/admin/events/"+event.ID+"/tiers", "org-1", map[string]interface{}{
		"name":           "Floor",
		"price":          "40.00",
		"total_quantity": 200,
		"min_per_order":  1,
		"max_per_order":  6,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tier struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tier))

	rec, _ = do(t, h, http.MethodPut, "/api/admin/tiers/"+tier.ID+"/capacity", "org-1", map[string]int{"total_quantity": 150})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = do(t, h, http.MethodPost, "/api/admin/events/"+event.ID+"/publish", "org-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.Equal(t, "PUBLISHED", event.Status)

	rec, env = do(t, h, http.MethodGet, "/api/admin/events/"+event.ID+"/tiers", "org-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tiers []struct {
		TotalQuantity int `json:"total_quantity"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tiers))
	require.Len(t, tiers, 1)
	assert.Equal(t, 150, tiers[0].TotalQuantity)
}

func TestOtherOrganizerCannotTouchEvent(t *testing.T) {
	h := newRouter(t)

	_, env := do(t, h, http.MethodPost, "/api/admin/events", "org-1", map[string]interface{}{
		"name":       "Private Gig",
		"start_date": now.Add(48 * time.Hour),
		"end_date":   now.Add(50 * time.Hour),
	})
	var event struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &event))

	rec, _ := do(t, h, http.MethodGet, "/api/admin/events/"+event.ID, "org-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/admin/events/"+event.ID+"/cancel", "org-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/admin/events", "org-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestCreateEventValidation(t *testing.T) {
	h := newRouter(t)

	rec, _ := do(t, h, http.MethodPost, "/api/admin/events", "org-1", map[string]interface{}{
		"name":       "Backwards",
		"start_date": now.Add(48 * time.Hour),
		"end_date":   now.Add(24 * time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
