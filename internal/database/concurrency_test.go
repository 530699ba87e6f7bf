package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reservly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two (here: ten) concurrent creates for the same staff member and
// overlapping interval must yield exactly one success; everyone else gets the
// conflict error, never a silent double booking.
func TestConcurrentCreateReservation(t *testing.T) {
	db := setupTestDB(t)
	store := seedStore(t, db)
	staff := seedStaff(t, db, store.ID)
	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			res := newReservation(store.ID, staff.ID, "2025-06-02", "10:00", "11:00")
			res.CustomerID = int64(id + 1)
			results <- db.CreateReservationWithLock(ctx, res)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrSlotConflict):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one booking should win the slot")
	assert.Equal(t, numGoroutines-1, conflictCount)

	active, err := db.GetActiveReservationsByStaffAndDate(ctx, staff.ID, "2025-06-02")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

// Concurrent workers over the same backlog must never claim the same task.
func TestConcurrentClaim(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	const numTasks = 5
	for i := 0; i < numTasks; i++ {
		enqueue(t, db, 1, int64(100+i), models.ActionCreate)
	}

	const numWorkers = 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	claims := make(chan int64, numWorkers*numTasks)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for {
				task, err := db.ClaimNextSyncTask(ctx, 1, now)
				if errors.Is(err, ErrNotFound) {
					return
				}
				require.NoError(t, err)
				claims <- task.ID
			}
		}()
	}

	wg.Wait()
	close(claims)

	seen := make(map[int64]int)
	for id := range claims {
		seen[id]++
	}
	assert.Len(t, seen, numTasks)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %d claimed more than once", id)
	}
}
