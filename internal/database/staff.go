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

const staffColumns = `id, store_id, name, calendar_id, working_days, work_start,
	work_end, break_start, break_end, is_active, created_at, updated_at`

func (db *DB) CreateStaff(ctx context.Context, staff *models.Staff) error {
	days, err := json.Marshal(staff.WorkingDays)
	if err != nil {
		return fmt.Errorf("encode working days: %w", err)
	}

	query := `INSERT INTO staff (
				store_id, name, calendar_id, working_days, work_start, work_end,
				break_start, break_end, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		staff.StoreID, staff.Name, staff.CalendarID, string(days),
		staff.WorkStart, staff.WorkEnd, staff.BreakStart, staff.BreakEnd,
		staff.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	staff.ID = id
	staff.CreatedAt = now
	staff.UpdatedAt = now
	return nil
}

func (db *DB) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	days, err := json.Marshal(staff.WorkingDays)
	if err != nil {
		return fmt.Errorf("encode working days: %w", err)
	}

	query := `UPDATE staff SET
				name = ?, calendar_id = ?, working_days = ?, work_start = ?,
				work_end = ?, break_start = ?, break_end = ?, is_active = ?,
				updated_at = ?
			WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		staff.Name, staff.CalendarID, string(days), staff.WorkStart,
		staff.WorkEnd, staff.BreakStart, staff.BreakEnd, staff.IsActive,
		time.Now(), staff.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update staff: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = ?`
	staff, err := scanStaff(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return staff, nil
}

// GetActiveStaffByStore returns the store's bookable staff, insertion-ordered.
func (db *DB) GetActiveStaffByStore(ctx context.Context, storeID int64) ([]*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE store_id = ? AND is_active = 1 ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get staff by store: %w", err)
	}
	defer rows.Close()

	var result []*models.Staff
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStaff(row rowScanner) (*models.Staff, error) {
	var staff models.Staff
	var days string
	err := row.Scan(
		&staff.ID, &staff.StoreID, &staff.Name, &staff.CalendarID, &days,
		&staff.WorkStart, &staff.WorkEnd, &staff.BreakStart, &staff.BreakEnd,
		&staff.IsActive, &staff.CreatedAt, &staff.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(days), &staff.WorkingDays); err != nil {
		return nil, fmt.Errorf("decode working days: %w", err)
	}
	return &staff, nil
}
