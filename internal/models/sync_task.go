package models

import "time"

// SyncTask is one unit of "propagate this reservation mutation to the
// external calendar" work. At most one non-terminal task exists per
// (store, reservation, action).
type SyncTask struct {
	ID            int64      `json:"id"`
	StoreID       int64      `json:"store_id"`
	ReservationID int64      `json:"reservation_id"`
	Action        string     `json:"action"`
	CalendarID    string     `json:"calendar_id"`
	EventID       string     `json:"event_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// QueueSummary is the operator-facing view of a store's sync backlog.
// Backlog counts the tasks that may still run: everything not succeeded
// or dead.
type QueueSummary struct {
	Counts          map[string]int64 `json:"counts"`
	Backlog         int64            `json:"backlog"`
	OldestPendingAt *time.Time       `json:"oldest_pending_at,omitempty"`
	LastError       *string          `json:"last_error,omitempty"`
}
