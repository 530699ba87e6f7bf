package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reservly/internal/models"
)

const syncTaskColumns = `id, store_id, reservation_id, action, calendar_id,
	event_id, status, attempts, max_attempts, next_run_at, last_attempt_at,
	last_error, created_at, updated_at`

// EnqueueSyncTask inserts a task or merges into the existing non-terminal task
// for the same (store, reservation, action) key. Merge policy: non-empty
// incoming calendar/event refs win; a pending or failed task is pulled forward
// to run now; a running task only gets its refs merged so a second concurrent
// execution is never started.
func (db *DB) EnqueueSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = models.DefaultMaxAttempts
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()

	var existingID int64
	var existingStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT id, status FROM sync_queue
		 WHERE store_id = ? AND reservation_id = ? AND action = ?
		   AND status IN (?, ?, ?)
		 LIMIT 1`,
		task.StoreID, task.ReservationID, task.Action,
		models.TaskPending, models.TaskRunning, models.TaskFailed,
	).Scan(&existingID, &existingStatus)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx,
			`INSERT INTO sync_queue (
				store_id, reservation_id, action, calendar_id, event_id,
				status, attempts, max_attempts, next_run_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			task.StoreID, task.ReservationID, task.Action, task.CalendarID,
			task.EventID, models.TaskPending, task.MaxAttempts, now, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sync task: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		task.ID = id
		task.Status = models.TaskPending
		task.NextRunAt = now
		task.CreatedAt = now

	case err != nil:
		return fmt.Errorf("failed to find active sync task: %w", err)

	case existingStatus == models.TaskRunning:
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_queue SET
				calendar_id = CASE WHEN ? != '' THEN ? ELSE calendar_id END,
				event_id = CASE WHEN ? != '' THEN ? ELSE event_id END,
				updated_at = ?
			 WHERE id = ?`,
			task.CalendarID, task.CalendarID, task.EventID, task.EventID, now, existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to merge into running sync task: %w", err)
		}
		task.ID = existingID
		task.Status = models.TaskRunning

	default: // pending or failed: merge refs and pull the run time forward
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_queue SET
				calendar_id = CASE WHEN ? != '' THEN ? ELSE calendar_id END,
				event_id = CASE WHEN ? != '' THEN ? ELSE event_id END,
				status = ?, next_run_at = ?, updated_at = ?
			 WHERE id = ?`,
			task.CalendarID, task.CalendarID, task.EventID, task.EventID,
			models.TaskPending, now, now, existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to merge into pending sync task: %w", err)
		}
		task.ID = existingID
		task.Status = models.TaskPending
		task.NextRunAt = now
	}

	return tx.Commit()
}

// ClaimNextSyncTask atomically takes ownership of the oldest eligible task for
// a store: selected and flipped to running (attempts incremented, attempt time
// stamped) inside one immediate transaction, with a status compare-and-swap as
// the guard. Returns ErrNotFound when the backlog is empty.
func (db *DB) ClaimNextSyncTask(ctx context.Context, storeID int64, now time.Time) (*models.SyncTask, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue
              WHERE store_id = ? AND status IN (?, ?) AND next_run_at <= ?
              ORDER BY next_run_at ASC, id ASC LIMIT 1`
	task, err := scanSyncTask(tx.QueryRowContext(ctx, query,
		storeID, models.TaskPending, models.TaskFailed, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable task: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, attempts = attempts + 1,
			last_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		models.TaskRunning, now, now, task.ID, models.TaskPending, models.TaskFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Lost the claim race to another worker.
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	task.Status = models.TaskRunning
	task.Attempts++
	task.LastAttemptAt = &now
	return task, nil
}

// MarkSyncTaskSucceeded finalizes a task.
func (db *DB) MarkSyncTaskSucceeded(ctx context.Context, id int64) error {
	query := `UPDATE sync_queue SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.TaskSucceeded, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark task succeeded: %w", err)
	}
	return nil
}

// MarkSyncTaskFailed records a retryable failure; the task becomes claimable
// again once nextRunAt passes.
func (db *DB) MarkSyncTaskFailed(ctx context.Context, id int64, errMsg string, nextRunAt time.Time) error {
	query := `UPDATE sync_queue SET status = ?, last_error = ?, next_run_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.TaskFailed, errMsg, nextRunAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

// MarkSyncTaskDead dead-letters a task permanently; only a manual retry
// revives it.
func (db *DB) MarkSyncTaskDead(ctx context.Context, id int64, errMsg string) error {
	query := `UPDATE sync_queue SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.TaskDead, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark task dead: %w", err)
	}
	return nil
}

// RetrySyncTasks resets dead (and optionally failed) tasks back to pending
// with a zeroed attempt counter. An empty ids slice targets the whole store.
// Returns the number of tasks revived.
func (db *DB) RetrySyncTasks(ctx context.Context, storeID int64, ids []int64, includeFailed bool, now time.Time) (int64, error) {
	statuses := []string{models.TaskDead}
	if includeFailed {
		statuses = append(statuses, models.TaskFailed)
	}

	query := `UPDATE sync_queue SET status = ?, attempts = 0, next_run_at = ?, updated_at = ?
              WHERE store_id = ? AND status IN (` + placeholders(len(statuses)) + `)`
	args := []interface{}{models.TaskPending, now, now, storeID}
	for _, s := range statuses {
		args = append(args, s)
	}

	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to retry sync tasks: %w", err)
	}
	return result.RowsAffected()
}

// ReclaimStaleSyncTasks requeues running tasks whose last attempt is older
// than the lease, covering workers that died mid-execution. Attempts are kept
// so a crash loop still converges on the dead-letter ceiling.
func (db *DB) ReclaimStaleSyncTasks(ctx context.Context, lease time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-lease)
	query := `UPDATE sync_queue SET status = ?, next_run_at = ?, updated_at = ?
              WHERE status = ? AND last_attempt_at IS NOT NULL AND last_attempt_at <= ?`
	result, err := db.ExecContext(ctx, query, models.TaskPending, now, now, models.TaskRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale tasks: %w", err)
	}
	return result.RowsAffected()
}

// GetStoreIDsWithDueTasks lists the stores that currently have at least one
// claimable task, so the worker only visits backlogs with work in them.
func (db *DB) GetStoreIDsWithDueTasks(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT store_id FROM sync_queue
		 WHERE status IN (?, ?) AND next_run_at <= ?
		 ORDER BY store_id`,
		models.TaskPending, models.TaskFailed, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due stores: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan store id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSyncTask returns one task by id.
func (db *DB) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue WHERE id = ?`
	task, err := scanSyncTask(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync task: %w", err)
	}
	return task, nil
}

// GetSyncQueueSummary builds the operator-facing view: counts by status, the
// oldest pending run time and the most recent recorded error.
func (db *DB) GetSyncQueueSummary(ctx context.Context, storeID int64) (*models.QueueSummary, error) {
	summary := &models.QueueSummary{Counts: make(map[string]int64)}

	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_queue WHERE store_id = ? GROUP BY status`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		summary.Counts[status] = count
		if !models.IsTerminalTaskStatus(status) {
			summary.Backlog += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var oldest sql.NullTime
	err = db.QueryRowContext(ctx,
		`SELECT MIN(next_run_at) FROM sync_queue WHERE store_id = ? AND status IN (?, ?)`,
		storeID, models.TaskPending, models.TaskFailed).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest pending: %w", err)
	}
	if oldest.Valid {
		summary.OldestPendingAt = &oldest.Time
	}

	var lastErr sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT last_error FROM sync_queue
		 WHERE store_id = ? AND last_error IS NOT NULL
		 ORDER BY updated_at DESC LIMIT 1`, storeID).Scan(&lastErr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last error: %w", err)
	}
	if lastErr.Valid {
		summary.LastError = &lastErr.String
	}

	return summary, nil
}

func scanSyncTask(row rowScanner) (*models.SyncTask, error) {
	var task models.SyncTask
	var lastAttempt sql.NullTime
	var lastError sql.NullString
	err := row.Scan(
		&task.ID, &task.StoreID, &task.ReservationID, &task.Action,
		&task.CalendarID, &task.EventID, &task.Status, &task.Attempts,
		&task.MaxAttempts, &task.NextRunAt, &lastAttempt, &lastError,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAttempt.Valid {
		task.LastAttemptAt = &lastAttempt.Time
	}
	if lastError.Valid {
		task.LastError = &lastError.String
	}
	return &task, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
