package database

import (
	"context"
	"testing"
	"time"

	"reservly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, db *DB, storeID, reservationID int64, action string) *models.SyncTask {
	t.Helper()
	task := &models.SyncTask{StoreID: storeID, ReservationID: reservationID, Action: action}
	require.NoError(t, db.EnqueueSyncTask(context.Background(), task))
	return task
}

func TestEnqueueIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := enqueue(t, db, 1, 100, models.ActionCreate)

	// Same key again: merged, not duplicated.
	second := &models.SyncTask{StoreID: 1, ReservationID: 100, Action: models.ActionCreate, CalendarID: "cal-2"}
	require.NoError(t, db.EnqueueSyncTask(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	summary, err := db.GetSyncQueueSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Counts[models.TaskPending])

	// Non-empty incoming refs won the merge.
	got, err := db.GetSyncTask(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "cal-2", got.CalendarID)

	// A different action is a separate task.
	enqueue(t, db, 1, 100, models.ActionDelete)
	summary, err = db.GetSyncQueueSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Counts[models.TaskPending])
}

func TestEnqueueMergeLeavesRunningAlone(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueue(t, db, 1, 100, models.ActionUpdate)
	claimed, err := db.ClaimNextSyncTask(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Equal(t, models.TaskRunning, claimed.Status)

	// Enqueue against the running task merges refs but does not requeue it.
	merge := &models.SyncTask{StoreID: 1, ReservationID: 100, Action: models.ActionUpdate, EventID: "evt-9"}
	require.NoError(t, db.EnqueueSyncTask(ctx, merge))
	assert.Equal(t, claimed.ID, merge.ID)

	got, err := db.GetSyncTask(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, got.Status)
	assert.Equal(t, "evt-9", got.EventID)

	// Nothing claimable: the only task is running.
	_, err = db.ClaimNextSyncTask(ctx, 1, time.Now())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaimOrderAndEligibility(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	a := enqueue(t, db, 1, 100, models.ActionCreate)
	b := enqueue(t, db, 1, 101, models.ActionCreate)

	// Push a's run time into the future: b becomes the oldest eligible.
	require.NoError(t, db.MarkSyncTaskFailed(ctx, a.ID, "boom", now.Add(time.Hour)))

	claimed, err := db.ClaimNextSyncTask(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, b.ID, claimed.ID)
	assert.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LastAttemptAt)

	// a is not eligible until its backoff expires.
	_, err = db.ClaimNextSyncTask(ctx, 1, now)
	require.ErrorIs(t, err, ErrNotFound)

	// After expiry the failed task is claimable again.
	claimed, err = db.ClaimNextSyncTask(ctx, 1, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a.ID, claimed.ID)

	// Another store's backlog is invisible.
	_, err = db.ClaimNextSyncTask(ctx, 2, now.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeadLetterAndManualRetry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	task := enqueue(t, db, 1, 100, models.ActionCreate)
	require.NoError(t, db.MarkSyncTaskDead(ctx, task.ID, "gave up"))

	// Dead tasks are never claimed.
	_, err := db.ClaimNextSyncTask(ctx, 1, now.Add(24*time.Hour))
	require.ErrorIs(t, err, ErrNotFound)

	summary, err := db.GetSyncQueueSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Counts[models.TaskDead])
	assert.Equal(t, int64(0), summary.Backlog, "dead tasks are out of the backlog")
	require.NotNil(t, summary.LastError)
	assert.Equal(t, "gave up", *summary.LastError)

	// Manual retry revives it with attempts reset.
	revived, err := db.RetrySyncTasks(ctx, 1, nil, false, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revived)

	got, err := db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Status)
	assert.Equal(t, 0, got.Attempts)

	claimed, err := db.ClaimNextSyncTask(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, task.ID, claimed.ID)
}

func TestManualRetryScopedToIDsAndFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	deadA := enqueue(t, db, 1, 100, models.ActionCreate)
	deadB := enqueue(t, db, 1, 101, models.ActionCreate)
	failed := enqueue(t, db, 1, 102, models.ActionCreate)
	require.NoError(t, db.MarkSyncTaskDead(ctx, deadA.ID, "x"))
	require.NoError(t, db.MarkSyncTaskDead(ctx, deadB.ID, "y"))
	require.NoError(t, db.MarkSyncTaskFailed(ctx, failed.ID, "z", now.Add(time.Hour)))

	// Only the selected dead task comes back without includeFailed.
	revived, err := db.RetrySyncTasks(ctx, 1, []int64{deadA.ID}, false, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revived)

	// includeFailed sweeps the failed one too.
	revived, err = db.RetrySyncTasks(ctx, 1, nil, true, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revived)
}

func TestReclaimStaleRunning(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	task := enqueue(t, db, 1, 100, models.ActionCreate)
	_, err := db.ClaimNextSyncTask(ctx, 1, now)
	require.NoError(t, err)

	// Fresh running task is inside its lease.
	reclaimed, err := db.ReclaimStaleSyncTasks(ctx, 15*time.Minute, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, reclaimed)

	// Past the lease it is requeued, attempts preserved.
	reclaimed, err = db.ReclaimStaleSyncTasks(ctx, 15*time.Minute, now.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	got, err := db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestQueueSummaryOldestPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueue(t, db, 1, 100, models.ActionCreate)
	time.Sleep(10 * time.Millisecond)
	enqueue(t, db, 1, 101, models.ActionCreate)

	summary, err := db.GetSyncQueueSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Counts[models.TaskPending])
	assert.Equal(t, int64(2), summary.Backlog)
	require.NotNil(t, summary.OldestPendingAt)
	assert.False(t, summary.OldestPendingAt.After(time.Now()))
	assert.Nil(t, summary.LastError)
}
