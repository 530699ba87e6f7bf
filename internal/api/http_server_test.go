package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"reservly/internal/booking"
	"reservly/internal/calendar"
	"reservly/internal/config"
	"reservly/internal/database"
	"reservly/internal/events"
	"reservly/internal/models"
	"reservly/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubCalendar struct{}

func (stubCalendar) CreateEvent(context.Context, string, *calendar.Event) (string, error) {
	return "ev-1", nil
}
func (stubCalendar) UpdateEvent(context.Context, string, string, *calendar.Event) error { return nil }
func (stubCalendar) DeleteEvent(context.Context, string, string) error                  { return nil }

type testServer struct {
	handler http.Handler
	db      *database.DB
	store   *models.Store
	staff   *models.Staff
}

// newTestServer wires the real stack behind httptest: sqlite database,
// booking service with a fixed clock of Monday 2025-06-02 09:00 JST, the
// calendar worker as sync scheduler and the in-process event bus.
func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	store := &models.Store{
		Name:     "Ginza Salon",
		Timezone: "Asia/Tokyo",
		BusinessHours: map[int]models.DayHours{
			1: {IsOpen: true, Open: "10:00", Close: "20:00"},
			2: {IsOpen: true, Open: "10:00", Close: "20:00"},
			3: {IsOpen: true, Open: "10:00", Close: "20:00"},
			4: {IsOpen: true, Open: "10:00", Close: "20:00"},
			5: {IsOpen: true, Open: "10:00", Close: "20:00"},
			6: {IsOpen: true, Open: "10:00", Close: "20:00"},
		},
		RegularHolidays:     []int{0},
		SlotDurationMinutes: 30,
		AdvanceBookingDays:  30,
		CancelDeadlineHours: 24,
	}
	require.NoError(t, db.CreateStore(ctx, store))

	staff := &models.Staff{
		StoreID:     store.ID,
		Name:        "Sato",
		CalendarID:  "cal-sato",
		WorkingDays: []int{1, 2, 3, 4, 5},
		WorkStart:   "10:00",
		WorkEnd:     "19:00",
		IsActive:    true,
	}
	require.NoError(t, db.CreateStaff(ctx, staff))

	w := worker.NewCalendarWorker(db, stubCalendar{}, nil, worker.RetryPolicy{}, &logger)
	bus := events.NewBus(&logger)
	svc := booking.NewService(db, w, bus, &logger)

	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	svc.SetNowFunc(func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	})

	if cfg == nil {
		cfg = &config.Config{}
	}
	srv := NewHTTPServer(cfg, svc, w, db, &logger)

	return &testServer{handler: srv.Handler(), db: db, store: store, staff: staff}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func createBody(ts *testServer) map[string]interface{} {
	return map[string]interface{}{
		"store_id":         ts.store.ID,
		"staff_id":         ts.staff.ID,
		"customer_id":      7,
		"customer_name":    "Tanaka",
		"service_name":     "Cut",
		"date":             "2025-06-03",
		"start_time":       "11:00",
		"duration_minutes": 60,
	}
}

func TestCreateReservationEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res models.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotZero(t, res.ID)
	assert.Equal(t, "12:00", res.EndTime)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreateReservationConflict(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := createBody(ts)
	body["customer_name"] = "Suzuki"
	body["start_time"] = "11:30" // overlaps [11:00, 12:00)
	rec = ts.do(t, http.MethodPost, "/api/v1/reservations", body)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestCreateReservationPolicyViolation(t *testing.T) {
	ts := newTestServer(t, nil)

	body := createBody(ts)
	body["date"] = "2025-08-01" // beyond the 30-day window
	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "advance_window_exceeded", resp["reason"])
}

func TestCreateReservationBadBody(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations",
		bytes.NewBufferString(`{"store_id": "not-a-number"}`))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityDayEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code)

	path := fmt.Sprintf("/api/v1/availability/day?store_id=%d&date=2025-06-03&duration=60", ts.store.ID)
	rec = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var day struct {
		Date   string `json:"date"`
		IsOpen bool   `json:"is_open"`
		Slots  []struct {
			Time      string `json:"time"`
			Available bool   `json:"available"`
		} `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	require.True(t, day.IsOpen)

	byTime := make(map[string]bool)
	for _, slot := range day.Slots {
		byTime[slot.Time] = slot.Available
	}
	assert.False(t, byTime["11:00"], "booked slot must show unavailable")
	assert.True(t, byTime["12:00"])
}

func TestAvailabilityWeekEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	path := fmt.Sprintf("/api/v1/availability/week?store_id=%d&start=2025-06-02", ts.store.ID)
	rec := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Days []struct {
			Date   string `json:"date"`
			IsOpen bool   `json:"is_open"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Days, 7)
	assert.False(t, resp.Days[6].IsOpen, "Sunday regular holiday")
}

func TestAvailabilityMissingParams(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/availability/day?date=2025-06-03", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/availability/day?store_id=%d", ts.store.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code)
	var res models.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/cancel", map[string]interface{}{
		"reservation_id": res.ID,
		"version":        res.Version,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Stale version after the cancel bumped it.
	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/cancel", map[string]interface{}{
		"reservation_id": res.ID,
		"version":        res.Version,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "canceled reservation cannot cancel again")
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code)
	var res models.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/status", map[string]interface{}{
		"reservation_id": res.ID,
		"version":        res.Version,
		"status":         models.StatusConfirmed,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/status", map[string]interface{}{
		"reservation_id": res.ID,
		"version":        res.Version, // stale: confirm bumped it
		"status":         models.StatusCompleted,
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "stale version is a conflict")
}

func TestNotFoundMapping(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations/cancel", map[string]interface{}{
		"reservation_id": 9999,
		"version":        1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sync/summary?store_id=%d", ts.store.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.QueueSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(1), summary.Counts[models.TaskPending])

	rec = ts.do(t, http.MethodPost, "/api/v1/sync/retry", map[string]interface{}{
		"store_id": ts.store.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var retried map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &retried))
	assert.Equal(t, int64(0), retried["retried"], "nothing dead to revive")
}

func TestExportEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", createBody(ts))
	require.Equal(t, http.StatusCreated, rec.Code)

	path := fmt.Sprintf("/api/v1/export/reservations?store_id=%d&from=2025-06-01&to=2025-06-30", ts.store.ID)
	rec = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "header plus one reservation")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			Enabled: true,
			APIKeys: []config.ClientKey{{Key: "key-1", Extra: "extra-1", Name: "tester"}},
		},
	}
	ts := newTestServer(t, cfg)

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sync/summary?store_id=%d", ts.store.ID), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/sync/summary?store_id=%d", ts.store.ID), nil)
	req.Header.Set("x-api-key", "key-1")
	req.Header.Set("x-api-extra", "wrong")
	rec2 := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	req.Header.Set("x-api-extra", "extra-1")
	rec3 := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusOK, rec3.Code)

	// Probes bypass auth.
	rec4 := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec4.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1},
	}
	ts := newTestServer(t, cfg)

	path := fmt.Sprintf("/api/v1/availability/day?store_id=%d&date=2025-06-03", ts.store.ID)
	rec := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
