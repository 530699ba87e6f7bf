package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reservly/internal/booking"
	"reservly/internal/config"
	"reservly/internal/database"
	"reservly/internal/metrics"
	"reservly/internal/models"
	"reservly/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService is the write/read surface the HTTP layer exposes.
type BookingService interface {
	CreateReservation(ctx context.Context, in booking.CreateInput) (*models.Reservation, error)
	CancelReservation(ctx context.Context, id, version int64) (*models.Reservation, error)
	RescheduleReservation(ctx context.Context, in booking.RescheduleInput) (*models.Reservation, error)
	TransitionStatus(ctx context.Context, id, version int64, to string) (*models.Reservation, error)
	DayAvailability(ctx context.Context, q booking.AvailabilityQuery) (schedule.DayAvailability, error)
	WeekAvailability(ctx context.Context, q booking.AvailabilityQuery) ([]schedule.DayAvailability, error)
}

// SyncService covers the queue operator endpoints.
type SyncService interface {
	QueueSummary(ctx context.Context, storeID int64) (*models.QueueSummary, error)
	RetryTasks(ctx context.Context, storeID int64, ids []int64, includeFailed bool) (int64, error)
}

// ExportStore is the read slice the XLSX export needs.
type ExportStore interface {
	GetStore(ctx context.Context, id int64) (*models.Store, error)
	GetReservationsByStoreAndDateRange(ctx context.Context, storeID int64, from, to string) ([]*models.Reservation, error)
}

// HTTPServer exposes the reservation API.
type HTTPServer struct {
	booking BookingService
	sync    SyncService
	store   ExportStore
	logger  *zerolog.Logger
	server  *http.Server
	auth    *HTTPAuth
}

func NewHTTPServer(cfg *config.Config, bookingSvc BookingService, syncSvc SyncService, store ExportStore, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		booking: bookingSvc,
		sync:    syncSvc,
		store:   store,
		logger:  logger,
	}
	srv.auth = NewHTTPAuth(cfg.Auth, cfg.RateLimit)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler builds the full middleware chain; exported so tests can drive it
// with httptest.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/availability/day", s.handleAvailabilityDay)
	mux.HandleFunc("/api/v1/availability/week", s.handleAvailabilityWeek)
	mux.HandleFunc("/api/v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("/api/v1/reservations/cancel", s.handleCancelReservation)
	mux.HandleFunc("/api/v1/reservations/reschedule", s.handleRescheduleReservation)
	mux.HandleFunc("/api/v1/reservations/status", s.handleTransitionStatus)
	mux.HandleFunc("/api/v1/sync/summary", s.handleSyncSummary)
	mux.HandleFunc("/api/v1/sync/retry", s.handleSyncRetry)
	mux.HandleFunc("/api/v1/export/reservations", s.handleExportReservations)
	mux.HandleFunc("/healthz", s.handleHealthz)

	return s.loggingMiddleware(s.auth.Wrap(mux))
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleAvailabilityDay(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_day")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q, err := availabilityQueryFromRequest(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	day, err := s.booking.DayAvailability(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleAvailabilityWeek(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_week")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q, err := availabilityQueryFromRequest(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days, err := s.booking.WeekAvailability(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days})
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_create")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		StoreID         int64  `json:"store_id"`
		StaffID         int64  `json:"staff_id"`
		CustomerID      int64  `json:"customer_id"`
		CustomerName    string `json:"customer_name"`
		ServiceName     string `json:"service_name"`
		Date            string `json:"date"`
		StartTime       string `json:"start_time"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.booking.CreateReservation(r.Context(), booking.CreateInput{
		StoreID:         body.StoreID,
		StaffID:         body.StaffID,
		CustomerID:      body.CustomerID,
		CustomerName:    body.CustomerName,
		ServiceName:     body.ServiceName,
		Date:            body.Date,
		StartTime:       body.StartTime,
		DurationMinutes: body.DurationMinutes,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	metrics.IncReservationCreated()
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_cancel")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ReservationID int64 `json:"reservation_id"`
		Version       int64 `json:"version"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.booking.CancelReservation(r.Context(), body.ReservationID, body.Version)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleRescheduleReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_reschedule")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ReservationID   int64  `json:"reservation_id"`
		Version         int64  `json:"version"`
		StaffID         int64  `json:"staff_id"`
		Date            string `json:"date"`
		StartTime       string `json:"start_time"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.booking.RescheduleReservation(r.Context(), booking.RescheduleInput{
		ReservationID:   body.ReservationID,
		Version:         body.Version,
		StaffID:         body.StaffID,
		Date:            body.Date,
		StartTime:       body.StartTime,
		DurationMinutes: body.DurationMinutes,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleTransitionStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_status")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ReservationID int64  `json:"reservation_id"`
		Version       int64  `json:"version"`
		Status        string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	res, err := s.booking.TransitionStatus(r.Context(), body.ReservationID, body.Version, body.Status)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSyncSummary(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_summary")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	storeID, err := int64Param(r, "store_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.sync.QueueSummary(r.Context(), storeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_retry")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		StoreID       int64   `json:"store_id"`
		TaskIDs       []int64 `json:"task_ids"`
		IncludeFailed bool    `json:"include_failed"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.StoreID == 0 {
		writeError(w, http.StatusBadRequest, "store_id is required")
		return
	}

	n, err := s.sync.RetryTasks(r.Context(), body.StoreID, body.TaskIDs, body.IncludeFailed)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"retried": n})
}

func (s *HTTPServer) handleExportReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_reservations")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	storeID, err := int64Param(r, "store_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	store, err := s.store.GetStore(r.Context(), storeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	reservations, err := s.store.GetReservationsByStoreAndDateRange(r.Context(), storeID, from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="reservations_%s_%s.xlsx"`, from, to))
	if err := writeXLSX(w, store, reservations); err != nil {
		s.logger.Error().Err(err).Msg("write export")
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps service errors to HTTP statuses.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *booking.ValidationError
	var pv *booking.PolicyViolation

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &pv):
		metrics.IncPolicyRejection(pv.Reason)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  pv.Error(),
			"reason": pv.Reason,
		})
	case errors.Is(err, database.ErrSlotConflict):
		metrics.IncSlotConflict()
		writeError(w, http.StatusConflict, "requested slot is no longer available")
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "reservation was modified concurrently")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
