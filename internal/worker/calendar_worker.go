package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reservly/internal/calendar"
	"reservly/internal/database"
	"reservly/internal/metrics"
	"reservly/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CalendarWorker drains the sync queue and applies each task to the external
// calendar. Claims go through the database so any number of workers can run;
// redis only shortens the wakeup latency and carries the dead-letter copies.
type CalendarWorker struct {
	db            *database.DB
	calendar      calendar.Client
	redis         *redis.Client
	retryPolicy   RetryPolicy
	logger        *zerolog.Logger
	nudgeKey      string
	deadLetterKey string
	pollInterval  time.Duration
	callTimeout   time.Duration
	leaseDuration time.Duration
	reclaimEvery  time.Duration
	maxAttempts   int
	nowFunc       func() time.Time
}

// Tuning overrides the loop defaults; zero fields keep the current values.
type Tuning struct {
	PollInterval  time.Duration
	CallTimeout   time.Duration
	LeaseDuration time.Duration
	ReclaimEvery  time.Duration
	MaxAttempts   int
}

// NewCalendarWorker builds a worker with sane defaults. redisClient may be
// nil; the worker then runs on polling alone.
func NewCalendarWorker(db *database.DB, cal calendar.Client, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *CalendarWorker {
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 30 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Hour
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &CalendarWorker{
		db:            db,
		calendar:      cal,
		redis:         redisClient,
		retryPolicy:   retry,
		logger:        logger,
		nudgeKey:      "calendar:nudge",
		deadLetterKey: "calendar:deadletter",
		pollInterval:  2 * time.Second,
		callTimeout:   30 * time.Second,
		leaseDuration: 15 * time.Minute,
		reclaimEvery:  time.Minute,
		maxAttempts:   models.DefaultMaxAttempts,
		nowFunc:       time.Now,
	}
}

// Tune applies operator configuration on top of the defaults.
func (w *CalendarWorker) Tune(t Tuning) {
	if t.PollInterval > 0 {
		w.pollInterval = t.PollInterval
	}
	if t.CallTimeout > 0 {
		w.callTimeout = t.CallTimeout
	}
	if t.LeaseDuration > 0 {
		w.leaseDuration = t.LeaseDuration
	}
	if t.ReclaimEvery > 0 {
		w.reclaimEvery = t.ReclaimEvery
	}
	if t.MaxAttempts > 0 {
		w.maxAttempts = t.MaxAttempts
	}
}

// SetNowFunc overrides the clock; tests only.
func (w *CalendarWorker) SetNowFunc(f func() time.Time) {
	w.nowFunc = f
}

// EnqueueReservationSync persists a sync task for the reservation and nudges
// the worker through redis. The database write is the source of truth; a
// failed nudge only delays pickup until the next poll.
func (w *CalendarWorker) EnqueueReservationSync(ctx context.Context, action string, res *models.Reservation) error {
	if res == nil || res.ID == 0 {
		return errors.New("reservation id is required")
	}
	switch action {
	case models.ActionCreate, models.ActionUpdate, models.ActionDelete:
	default:
		return fmt.Errorf("unknown sync action: %s", action)
	}

	task := models.SyncTask{
		StoreID:       res.StoreID,
		ReservationID: res.ID,
		Action:        action,
		CalendarID:    res.CalendarID,
		EventID:       res.EventID,
		MaxAttempts:   w.maxAttempts,
	}
	if err := w.db.EnqueueSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	metrics.IncSyncTask("enqueued")

	if w.redis != nil {
		if err := w.redis.LPush(ctx, w.nudgeKey, task.ID).Err(); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis nudge failed, polling will pick it up")
		}
	}
	return nil
}

// Start runs the claim loop until ctx is done.
func (w *CalendarWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("calendar worker started")
	defer w.logger.Info().Msg("calendar worker stopped")

	lastReclaim := w.nowFunc()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := w.nowFunc()
		if now.Sub(lastReclaim) >= w.reclaimEvery {
			w.reclaimStale(ctx, now)
			lastReclaim = now
		}

		if w.DrainOnce(ctx) > 0 {
			continue
		}
		w.waitForWork(ctx)
	}
}

// DrainOnce claims and processes everything currently due, across all stores.
// Returns the number of tasks processed.
func (w *CalendarWorker) DrainOnce(ctx context.Context) int {
	now := w.nowFunc()
	storeIDs, err := w.db.GetStoreIDsWithDueTasks(ctx, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("list due stores")
		return 0
	}

	processed := 0
	for _, storeID := range storeIDs {
		for {
			task, err := w.db.ClaimNextSyncTask(ctx, storeID, w.nowFunc())
			if errors.Is(err, database.ErrNotFound) {
				break
			}
			if err != nil {
				w.logger.Error().Err(err).Int64("store_id", storeID).Msg("claim sync task")
				break
			}
			w.processTask(ctx, task)
			processed++
		}
	}
	return processed
}

// waitForWork blocks on the redis nudge list with the poll interval as the
// upper bound, or just sleeps when redis is absent.
func (w *CalendarWorker) waitForWork(ctx context.Context) {
	if w.redis == nil {
		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
		return
	}

	_, err := w.redis.BRPop(ctx, w.pollInterval, w.nudgeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		w.logger.Warn().Err(err).Msg("redis BRPOP error")
		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *CalendarWorker) reclaimStale(ctx context.Context, now time.Time) {
	n, err := w.db.ReclaimStaleSyncTasks(ctx, w.leaseDuration, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("reclaim stale tasks")
		return
	}
	if n > 0 {
		w.logger.Warn().Int64("reclaimed", n).Msg("requeued stale running tasks")
	}
}

func (w *CalendarWorker) processTask(ctx context.Context, task *models.SyncTask) {
	err := w.executeTask(ctx, task)
	if err != nil {
		w.retryOrBury(ctx, task, err)
		return
	}

	if err := w.db.MarkSyncTaskSucceeded(ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task succeeded")
		return
	}
	metrics.IncSyncTask("succeeded")
	w.logger.Info().Int64("task_id", task.ID).Str("action", task.Action).
		Int64("reservation_id", task.ReservationID).Msg("sync task done")
}

// executeTask applies one task to the external calendar. A reservation that
// disappeared, one that was canceled or no-showed after the task was enqueued,
// or a staff member without a calendar is a vacuous success: there is nothing
// left to propagate.
func (w *CalendarWorker) executeTask(ctx context.Context, task *models.SyncTask) error {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()

	res, err := w.db.GetReservation(callCtx, task.ReservationID)
	if errors.Is(err, database.ErrNotFound) {
		w.logger.Warn().Int64("task_id", task.ID).Int64("reservation_id", task.ReservationID).
			Msg("reservation gone, dropping sync task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reservation: %w", err)
	}

	// A create or update for a reservation that lost its slot in the
	// meantime would orphan an event on the staff calendar; the cancel's own
	// delete task handles whatever was already written.
	if task.Action != models.ActionDelete && !models.IsActiveStatus(res.Status) {
		w.logger.Info().Int64("task_id", task.ID).Int64("reservation_id", res.ID).
			Str("status", res.Status).Msg("reservation no longer active, dropping sync task")
		return nil
	}

	calendarID := task.CalendarID
	if calendarID == "" {
		calendarID = res.CalendarID
	}
	if calendarID == "" {
		staff, err := w.db.GetStaff(callCtx, res.StaffID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("load staff: %w", err)
		}
		if staff != nil {
			calendarID = staff.CalendarID
		}
	}
	if calendarID == "" {
		return nil
	}

	eventID := task.EventID
	if eventID == "" {
		eventID = res.EventID
	}

	switch task.Action {
	case models.ActionCreate:
		if eventID != "" {
			// A retried create may have already written the event.
			return w.updateEvent(callCtx, res, calendarID, eventID)
		}
		return w.createEvent(callCtx, res, calendarID)

	case models.ActionUpdate:
		if eventID == "" {
			return w.createEvent(callCtx, res, calendarID)
		}
		return w.updateEvent(callCtx, res, calendarID, eventID)

	case models.ActionDelete:
		if eventID == "" {
			return nil
		}
		err := w.calendar.DeleteEvent(callCtx, calendarID, eventID)
		if err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
			return fmt.Errorf("delete event: %w", err)
		}
		if err := w.db.ClearReservationExternalRefs(ctx, res.ID); err != nil {
			return fmt.Errorf("clear external refs: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown task action: %s", task.Action)
	}
}

func (w *CalendarWorker) createEvent(ctx context.Context, res *models.Reservation, calendarID string) error {
	ev, err := w.buildEvent(ctx, res)
	if err != nil {
		return err
	}
	eventID, err := w.calendar.CreateEvent(ctx, calendarID, ev)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	if err := w.db.SetReservationExternalRefs(ctx, res.ID, calendarID, eventID); err != nil {
		return fmt.Errorf("store external refs: %w", err)
	}
	return nil
}

func (w *CalendarWorker) updateEvent(ctx context.Context, res *models.Reservation, calendarID, eventID string) error {
	ev, err := w.buildEvent(ctx, res)
	if err != nil {
		return err
	}
	err = w.calendar.UpdateEvent(ctx, calendarID, eventID, ev)
	if errors.Is(err, calendar.ErrEventNotFound) {
		// The event vanished on the provider side; recreate it.
		return w.createEvent(ctx, res, calendarID)
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if err := w.db.SetReservationExternalRefs(ctx, res.ID, calendarID, eventID); err != nil {
		return fmt.Errorf("store external refs: %w", err)
	}
	return nil
}

func (w *CalendarWorker) buildEvent(ctx context.Context, res *models.Reservation) (*calendar.Event, error) {
	store, err := w.db.GetStore(ctx, res.StoreID)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	summary := res.ServiceName
	if summary == "" {
		summary = "Reservation"
	}
	return &calendar.Event{
		Summary:     fmt.Sprintf("%s - %s", summary, res.CustomerName),
		Description: fmt.Sprintf("Reservation #%d at %s (%s)", res.ID, store.Name, res.Status),
		Date:        res.Date,
		StartTime:   res.StartTime,
		EndTime:     res.EndTime,
		Timezone:    store.Timezone,
	}, nil
}

func (w *CalendarWorker) retryOrBury(ctx context.Context, task *models.SyncTask, cause error) {
	if task.Attempts >= task.MaxAttempts {
		if err := w.db.MarkSyncTaskDead(ctx, task.ID, cause.Error()); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task dead")
			return
		}
		metrics.IncSyncTask("dead")
		w.logger.Error().Err(cause).Int64("task_id", task.ID).Int("attempts", task.Attempts).
			Msg("sync task dead-lettered")
		w.pushDeadLetter(ctx, task, cause)
		return
	}

	nextRunAt := w.nowFunc().Add(w.retryPolicy.NextDelay(task.Attempts))
	if err := w.db.MarkSyncTaskFailed(ctx, task.ID, cause.Error(), nextRunAt); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
		return
	}
	metrics.IncSyncTask("failed")
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempts", task.Attempts).
		Time("next_run_at", nextRunAt).Msg("sync task failed, will retry")
}

// pushDeadLetter mirrors a buried task into redis for external inspection.
// Best effort; the database row remains the authoritative record.
func (w *CalendarWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask, cause error) {
	if w.redis == nil {
		return
	}
	payload := struct {
		*models.SyncTask
		Error string `json:"error"`
	}{SyncTask: task, Error: cause.Error()}

	data, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}

// QueueSummary exposes the per-store backlog view.
func (w *CalendarWorker) QueueSummary(ctx context.Context, storeID int64) (*models.QueueSummary, error) {
	return w.db.GetSyncQueueSummary(ctx, storeID)
}

// RetryTasks revives dead (and optionally failed) tasks and nudges the loop.
func (w *CalendarWorker) RetryTasks(ctx context.Context, storeID int64, ids []int64, includeFailed bool) (int64, error) {
	n, err := w.db.RetrySyncTasks(ctx, storeID, ids, includeFailed, w.nowFunc())
	if err != nil {
		return 0, err
	}
	if n > 0 && w.redis != nil {
		if err := w.redis.LPush(ctx, w.nudgeKey, storeID).Err(); err != nil {
			w.logger.Warn().Err(err).Msg("redis nudge failed after retry")
		}
	}
	return n, nil
}
