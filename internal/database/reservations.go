package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reservly/internal/models"
)

const reservationColumns = `id, store_id, staff_id, customer_id, customer_name,
	service_name, date, start_time, end_time, status, calendar_id, event_id,
	version, created_at, updated_at`

// countOverlapQuery counts active reservations for a staff member on a date
// whose half-open [start_time, end_time) intersects the candidate interval.
// Zero-padded "HH:MM" strings compare correctly as text.
const countOverlapQuery = `SELECT COUNT(*) FROM reservations
	WHERE staff_id = ? AND date = ?
	  AND status NOT IN (?, ?)
	  AND start_time < ? AND ? < end_time
	  AND id != ?`

// CreateReservationWithLock checks for overlapping active reservations and
// inserts inside a single immediate transaction, so two concurrent bookings
// for the same staff member and overlapping interval cannot both commit.
func (db *DB) CreateReservationWithLock(ctx context.Context, res *models.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var overlapping int
	err = tx.QueryRowContext(ctx, countOverlapQuery,
		res.StaffID, res.Date, models.StatusCanceled, models.StatusNoShow,
		res.EndTime, res.StartTime, 0,
	).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to check conflicts in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrSlotConflict
	}

	query := `INSERT INTO reservations (
				store_id, staff_id, customer_id, customer_name, service_name,
				date, start_time, end_time, status, calendar_id, event_id,
				version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		res.StoreID, res.StaffID, res.CustomerID, res.CustomerName,
		res.ServiceName, res.Date, res.StartTime, res.EndTime, res.Status,
		res.CalendarID, res.EventID, 1, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	res.ID = id
	res.Version = 1
	res.CreatedAt = now
	res.UpdatedAt = now

	return tx.Commit()
}

// RescheduleReservationWithLock moves a reservation to a new slot, re-running
// the conflict check (excluding the reservation itself) in the same
// transaction as the update.
func (db *DB) RescheduleReservationWithLock(ctx context.Context, id, fromVersion int64, staffID int64, date, startTime, endTime string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var overlapping int
	err = tx.QueryRowContext(ctx, countOverlapQuery,
		staffID, date, models.StatusCanceled, models.StatusNoShow,
		endTime, startTime, id,
	).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to check conflicts in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrSlotConflict
	}

	query := `UPDATE reservations
			SET staff_id = ?, date = ?, start_time = ?, end_time = ?,
			    version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, staffID, date, startTime, endTime, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to reschedule reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	return tx.Commit()
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	res, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return res, nil
}

// GetActiveReservationsByStaffAndDate returns the intervals the conflict
// checker and slot generator must honor.
func (db *DB) GetActiveReservationsByStaffAndDate(ctx context.Context, staffID int64, date string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE staff_id = ? AND date = ? AND status NOT IN (?, ?)
              ORDER BY start_time ASC`
	return db.queryReservations(ctx, query, staffID, date, models.StatusCanceled, models.StatusNoShow)
}

// GetActiveReservationsByStoreAndDate returns all active reservations for a
// store on a date, for bulk slot generation.
func (db *DB) GetActiveReservationsByStoreAndDate(ctx context.Context, storeID int64, date string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE store_id = ? AND date = ? AND status NOT IN (?, ?)
              ORDER BY start_time ASC`
	return db.queryReservations(ctx, query, storeID, date, models.StatusCanceled, models.StatusNoShow)
}

// GetReservationsByStoreAndDateRange returns every reservation (any status)
// for a store between two civil dates inclusive.
func (db *DB) GetReservationsByStoreAndDateRange(ctx context.Context, storeID int64, from, to string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE store_id = ? AND date >= ? AND date <= ?
              ORDER BY date ASC, start_time ASC`
	return db.queryReservations(ctx, query, storeID, from, to)
}

// UpdateReservationStatusWithVersion applies an optimistic-locked status change.
func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// SetReservationExternalRefs stores the calendar/event cross-reference after
// a successful provider call. Intentionally not versioned: the sync worker
// must never lose to a status transition.
func (db *DB) SetReservationExternalRefs(ctx context.Context, id int64, calendarID, eventID string) error {
	query := `UPDATE reservations SET calendar_id = ?, event_id = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, calendarID, eventID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set external refs: %w", err)
	}
	return nil
}

// ClearReservationExternalRefs drops the cross-reference after the external
// event is deleted.
func (db *DB) ClearReservationExternalRefs(ctx context.Context, id int64) error {
	return db.SetReservationExternalRefs(ctx, id, "", "")
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...interface{}) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var result []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var res models.Reservation
	err := row.Scan(
		&res.ID, &res.StoreID, &res.StaffID, &res.CustomerID,
		&res.CustomerName, &res.ServiceName, &res.Date, &res.StartTime,
		&res.EndTime, &res.Status, &res.CalendarID, &res.EventID,
		&res.Version, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
