package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reservly/internal/models"
)

func (db *DB) CreateStore(ctx context.Context, store *models.Store) error {
	hours, holidays, tempHolidays, openDays, err := encodeStoreConfig(store)
	if err != nil {
		return err
	}

	query := `INSERT INTO stores (
				name, timezone, business_hours, regular_holidays,
				temporary_holidays, temporary_open_days, slot_duration_minutes,
				advance_booking_days, cancel_deadline_hours, min_lead_time_minutes,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		store.Name, store.Timezone, hours, holidays, tempHolidays, openDays,
		store.SlotDurationMinutes, store.AdvanceBookingDays,
		store.CancelDeadlineHours, store.MinLeadTimeMinutes, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	store.ID = id
	store.CreatedAt = now
	store.UpdatedAt = now
	return nil
}

func (db *DB) UpdateStore(ctx context.Context, store *models.Store) error {
	hours, holidays, tempHolidays, openDays, err := encodeStoreConfig(store)
	if err != nil {
		return err
	}

	query := `UPDATE stores SET
				name = ?, timezone = ?, business_hours = ?, regular_holidays = ?,
				temporary_holidays = ?, temporary_open_days = ?,
				slot_duration_minutes = ?, advance_booking_days = ?,
				cancel_deadline_hours = ?, min_lead_time_minutes = ?, updated_at = ?
			WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		store.Name, store.Timezone, hours, holidays, tempHolidays, openDays,
		store.SlotDurationMinutes, store.AdvanceBookingDays,
		store.CancelDeadlineHours, store.MinLeadTimeMinutes, time.Now(), store.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update store: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetStore(ctx context.Context, id int64) (*models.Store, error) {
	query := `SELECT id, name, timezone, business_hours, regular_holidays,
	                 temporary_holidays, temporary_open_days, slot_duration_minutes,
	                 advance_booking_days, cancel_deadline_hours, min_lead_time_minutes,
	                 created_at, updated_at
              FROM stores WHERE id = ?`

	var store models.Store
	var hours, holidays, tempHolidays, openDays string
	err := db.QueryRowContext(ctx, query, id).Scan(
		&store.ID, &store.Name, &store.Timezone, &hours, &holidays,
		&tempHolidays, &openDays, &store.SlotDurationMinutes,
		&store.AdvanceBookingDays, &store.CancelDeadlineHours,
		&store.MinLeadTimeMinutes, &store.CreatedAt, &store.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}

	if err := decodeStoreConfig(&store, hours, holidays, tempHolidays, openDays); err != nil {
		return nil, err
	}
	return &store, nil
}

func encodeStoreConfig(store *models.Store) (string, string, string, string, error) {
	hours, err := json.Marshal(store.BusinessHours)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode business hours: %w", err)
	}
	holidays, err := json.Marshal(store.RegularHolidays)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode regular holidays: %w", err)
	}
	tempHolidays, err := json.Marshal(store.TemporaryHolidays)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode temporary holidays: %w", err)
	}
	openDays, err := json.Marshal(store.TemporaryOpenDays)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode temporary open days: %w", err)
	}
	return string(hours), string(holidays), string(tempHolidays), string(openDays), nil
}

func decodeStoreConfig(store *models.Store, hours, holidays, tempHolidays, openDays string) error {
	if err := json.Unmarshal([]byte(hours), &store.BusinessHours); err != nil {
		return fmt.Errorf("decode business hours: %w", err)
	}
	if err := json.Unmarshal([]byte(holidays), &store.RegularHolidays); err != nil {
		return fmt.Errorf("decode regular holidays: %w", err)
	}
	if err := json.Unmarshal([]byte(tempHolidays), &store.TemporaryHolidays); err != nil {
		return fmt.Errorf("decode temporary holidays: %w", err)
	}
	if err := json.Unmarshal([]byte(openDays), &store.TemporaryOpenDays); err != nil {
		return fmt.Errorf("decode temporary open days: %w", err)
	}
	return nil
}
