package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"reservly/internal/booking"
	"reservly/internal/export"
	"reservly/internal/models"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeXLSX(w io.Writer, store *models.Store, reservations []*models.Reservation) error {
	return export.WriteReservationsXLSX(w, store, reservations)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

// availabilityQueryFromRequest parses the shared availability parameters;
// dateParam names the query key holding the date ("date" or "start").
func availabilityQueryFromRequest(r *http.Request, dateParam string) (booking.AvailabilityQuery, error) {
	var q booking.AvailabilityQuery

	storeID, err := int64Param(r, "store_id")
	if err != nil {
		return q, err
	}
	q.StoreID = storeID

	q.Date = r.URL.Query().Get(dateParam)
	if q.Date == "" {
		return q, fmt.Errorf("%s is required", dateParam)
	}

	if raw := r.URL.Query().Get("staff_id"); raw != "" {
		staffID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || staffID <= 0 {
			return q, fmt.Errorf("invalid staff_id")
		}
		q.StaffID = staffID
	}

	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err := strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			return q, fmt.Errorf("invalid duration")
		}
		q.ServiceDuration = duration
	}

	return q, nil
}
