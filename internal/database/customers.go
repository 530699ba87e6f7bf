package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reservly/internal/models"
)

func (db *DB) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `INSERT INTO customers (store_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, customer.StoreID, customer.Name, now, now)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	customer.ID = id
	customer.CreatedAt = now
	customer.UpdatedAt = now
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	query := `SELECT id, store_id, name, visits, cancels, no_shows, created_at, updated_at
              FROM customers WHERE id = ?`

	var c models.Customer
	err := db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.StoreID, &c.Name, &c.Visits, &c.Cancels, &c.NoShows,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// BumpCustomerStats increments one of the visit/cancel/no-show counters in
// response to a reservation status transition.
func (db *DB) BumpCustomerStats(ctx context.Context, customerID int64, status string) error {
	var column string
	switch status {
	case models.StatusCompleted:
		column = "visits"
	case models.StatusCanceled:
		column = "cancels"
	case models.StatusNoShow:
		column = "no_shows"
	default:
		return nil
	}

	query := fmt.Sprintf(`UPDATE customers SET %s = %s + 1, updated_at = ? WHERE id = ?`, column, column)
	_, err := db.ExecContext(ctx, query, time.Now(), customerID)
	if err != nil {
		return fmt.Errorf("failed to bump customer stats: %w", err)
	}
	return nil
}
