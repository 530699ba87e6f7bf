package booking

import (
	"context"
	"fmt"
	"time"

	"reservly/internal/events"
	"reservly/internal/models"
	"reservly/internal/schedule"

	"github.com/rs/zerolog"
)

// Repository is the slice of the relational store the booking flow needs.
type Repository interface {
	GetStore(ctx context.Context, id int64) (*models.Store, error)
	GetStaff(ctx context.Context, id int64) (*models.Staff, error)
	GetActiveStaffByStore(ctx context.Context, storeID int64) ([]*models.Staff, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetActiveReservationsByStoreAndDate(ctx context.Context, storeID int64, date string) ([]*models.Reservation, error)
	CreateReservationWithLock(ctx context.Context, res *models.Reservation) error
	RescheduleReservationWithLock(ctx context.Context, id, fromVersion int64, staffID int64, date, startTime, endTime string) error
	UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
}

// SyncScheduler enqueues external-calendar propagation; fire-and-forget from
// the booking path.
type SyncScheduler interface {
	EnqueueReservationSync(ctx context.Context, action string, res *models.Reservation) error
}

// EventPublisher fans out reservation lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type Service struct {
	repo    Repository
	queue   SyncScheduler
	bus     EventPublisher
	logger  *zerolog.Logger
	nowFunc func() time.Time
}

func NewService(repo Repository, queue SyncScheduler, bus EventPublisher, logger *zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		queue:   queue,
		bus:     bus,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock; tests only.
func (s *Service) SetNowFunc(f func() time.Time) {
	s.nowFunc = f
}

// CreateInput describes a booking request.
type CreateInput struct {
	StoreID         int64
	StaffID         int64
	CustomerID      int64
	CustomerName    string
	ServiceName     string
	Date            string // "2006-01-02"
	StartTime       string // "15:04"
	DurationMinutes int
}

// CreateReservation runs the full write path: policy, schedule fit, then the
// conflict-checked insert. On success a sync task is enqueued and an event
// published; neither blocks nor fails the booking.
func (s *Service) CreateReservation(ctx context.Context, in CreateInput) (*models.Reservation, error) {
	if in.CustomerName == "" {
		return nil, validationError("customer name is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, validationError("duration must be positive")
	}

	store, err := s.repo.GetStore(ctx, in.StoreID)
	if err != nil {
		return nil, err
	}
	staff, err := s.repo.GetStaff(ctx, in.StaffID)
	if err != nil {
		return nil, err
	}
	if staff.StoreID != store.ID || !staff.IsActive {
		return nil, validationError("staff %d is not bookable at store %d", in.StaffID, in.StoreID)
	}

	now := s.nowFunc()
	if err := CheckCreatePolicy(store, in.Date, in.StartTime, now); err != nil {
		return nil, err
	}

	start, err := schedule.ParseClock(in.StartTime)
	if err != nil {
		return nil, validationError("invalid start time %q", in.StartTime)
	}
	end := start + in.DurationMinutes
	if end >= 24*60 {
		return nil, validationError("reservation may not cross midnight")
	}

	if err := s.checkSlotFits(store, staff, in.Date, start, end, now); err != nil {
		return nil, err
	}

	res := &models.Reservation{
		StoreID:      store.ID,
		StaffID:      staff.ID,
		CustomerID:   in.CustomerID,
		CustomerName: in.CustomerName,
		ServiceName:  in.ServiceName,
		Date:         in.Date,
		StartTime:    schedule.FormatClock(start),
		EndTime:      schedule.FormatClock(end),
		Status:       models.StatusPending,
	}
	if err := s.repo.CreateReservationWithLock(ctx, res); err != nil {
		return nil, err
	}

	s.publish(events.EventReservationCreated, res)
	s.enqueueSync(ctx, models.ActionCreate, res)

	return res, nil
}

// CancelReservation is the customer-facing cancel: deadline-checked, limited
// to pending/confirmed reservations.
func (s *Service) CancelReservation(ctx context.Context, id, version int64) (*models.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(res.Status, models.StatusCanceled) {
		return nil, validationError("reservation %d cannot be canceled from status %s", id, res.Status)
	}

	store, err := s.repo.GetStore(ctx, res.StoreID)
	if err != nil {
		return nil, err
	}
	if err := CheckCancelPolicy(store, res, s.nowFunc()); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateReservationStatusWithVersion(ctx, id, version, models.StatusCanceled); err != nil {
		return nil, err
	}
	res.Status = models.StatusCanceled
	res.Version = version + 1

	s.publish(events.EventReservationCanceled, res)
	s.enqueueSync(ctx, models.ActionDelete, res)

	return res, nil
}

// RescheduleInput moves an existing reservation to a new slot, optionally to
// another staff member.
type RescheduleInput struct {
	ReservationID   int64
	Version         int64
	StaffID         int64 // zero keeps the current staff member
	Date            string
	StartTime       string
	DurationMinutes int
}

// RescheduleReservation applies the cancel policy against the old slot and
// the create policy against the new one, so "reschedule" cannot bypass the
// cancellation deadline.
func (s *Service) RescheduleReservation(ctx context.Context, in RescheduleInput) (*models.Reservation, error) {
	if in.DurationMinutes <= 0 {
		return nil, validationError("duration must be positive")
	}

	res, err := s.repo.GetReservation(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if !models.IsActiveStatus(res.Status) || res.Status == models.StatusCompleted {
		return nil, validationError("reservation %d cannot be rescheduled from status %s", in.ReservationID, res.Status)
	}

	store, err := s.repo.GetStore(ctx, res.StoreID)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	if err := CheckCancelPolicy(store, res, now); err != nil {
		return nil, err
	}
	if err := CheckCreatePolicy(store, in.Date, in.StartTime, now); err != nil {
		return nil, err
	}

	staffID := in.StaffID
	if staffID == 0 {
		staffID = res.StaffID
	}
	staff, err := s.repo.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if staff.StoreID != store.ID || !staff.IsActive {
		return nil, validationError("staff %d is not bookable at store %d", staffID, store.ID)
	}

	start, err := schedule.ParseClock(in.StartTime)
	if err != nil {
		return nil, validationError("invalid start time %q", in.StartTime)
	}
	end := start + in.DurationMinutes
	if end >= 24*60 {
		return nil, validationError("reservation may not cross midnight")
	}

	if err := s.checkSlotFits(store, staff, in.Date, start, end, now); err != nil {
		return nil, err
	}

	err = s.repo.RescheduleReservationWithLock(ctx, res.ID, in.Version, staff.ID,
		in.Date, schedule.FormatClock(start), schedule.FormatClock(end))
	if err != nil {
		return nil, err
	}

	res.StaffID = staff.ID
	res.Date = in.Date
	res.StartTime = schedule.FormatClock(start)
	res.EndTime = schedule.FormatClock(end)
	res.Version = in.Version + 1

	s.publish(events.EventReservationRescheduled, res)
	s.enqueueSync(ctx, models.ActionUpdate, res)

	return res, nil
}

// TransitionStatus is the admin/system path through the status machine; no
// deadline policy applies.
func (s *Service) TransitionStatus(ctx context.Context, id, version int64, to string) (*models.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(res.Status, to) {
		return nil, validationError("cannot transition reservation %d from %s to %s", id, res.Status, to)
	}

	if err := s.repo.UpdateReservationStatusWithVersion(ctx, id, version, to); err != nil {
		return nil, err
	}
	res.Status = to
	res.Version = version + 1

	s.publish(statusEvent(to), res)
	switch to {
	case models.StatusCanceled, models.StatusNoShow:
		s.enqueueSync(ctx, models.ActionDelete, res)
	default:
		s.enqueueSync(ctx, models.ActionUpdate, res)
	}

	return res, nil
}

// AvailabilityQuery describes the read path.
type AvailabilityQuery struct {
	StoreID         int64
	Date            string
	StaffID         int64 // zero means all active staff
	ServiceDuration int   // minutes; zero falls back to the slot size
}

// DayAvailability computes the slot grid for one date.
func (s *Service) DayAvailability(ctx context.Context, q AvailabilityQuery) (schedule.DayAvailability, error) {
	store, err := s.repo.GetStore(ctx, q.StoreID)
	if err != nil {
		return schedule.DayAvailability{}, err
	}

	now := s.nowFunc()
	win, err := schedule.ResolveDay(store, q.Date, now)
	if err != nil {
		return schedule.DayAvailability{}, validationError("%v", err)
	}

	staff, err := s.repo.GetActiveStaffByStore(ctx, q.StoreID)
	if err != nil {
		return schedule.DayAvailability{}, err
	}
	if q.StaffID != 0 {
		filtered := staff[:0]
		for _, member := range staff {
			if member.ID == q.StaffID {
				filtered = append(filtered, member)
			}
		}
		staff = filtered
	}

	booked, err := s.bookedIntervals(ctx, q.StoreID, q.Date)
	if err != nil {
		return schedule.DayAvailability{}, err
	}

	day, err := schedule.BuildDaySlots(store, win, staff, booked, q.ServiceDuration, now)
	if err != nil {
		return schedule.DayAvailability{}, validationError("%v", err)
	}
	return day, nil
}

// WeekAvailability computes seven independent days starting at q.Date.
func (s *Service) WeekAvailability(ctx context.Context, q AvailabilityQuery) ([]schedule.DayAvailability, error) {
	store, err := s.repo.GetStore(ctx, q.StoreID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load store timezone: %w", err)
	}
	start, err := schedule.ParseDate(q.Date, loc)
	if err != nil {
		return nil, validationError("invalid date %q", q.Date)
	}

	days := make([]schedule.DayAvailability, 0, 7)
	for i := 0; i < 7; i++ {
		dayQuery := q
		dayQuery.Date = schedule.FormatDate(start.AddDate(0, 0, i))
		day, err := s.DayAvailability(ctx, dayQuery)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

// checkSlotFits verifies the slot lies in the store's resolved window and the
// staff member's personal schedule. Conflicts against other reservations are
// left to the insert transaction.
func (s *Service) checkSlotFits(store *models.Store, staff *models.Staff, date string, start, end int, now time.Time) error {
	win, err := schedule.ResolveDay(store, date, now)
	if err != nil {
		return validationError("%v", err)
	}
	if !win.IsOpen || start < win.Open || end > win.Close {
		return policyViolation(ReasonOutsideSchedule, "store is closed for [%s, %s) on %s",
			schedule.FormatClock(start), schedule.FormatClock(end), date)
	}

	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		return fmt.Errorf("load store timezone: %w", err)
	}
	day, err := schedule.ParseDate(date, loc)
	if err != nil {
		return validationError("invalid date %q", date)
	}

	ok, err := schedule.StaffCanTake(staff, int(day.Weekday()), start, end)
	if err != nil {
		return validationError("%v", err)
	}
	if !ok {
		return policyViolation(ReasonOutsideSchedule, "staff %d does not work [%s, %s) on %s",
			staff.ID, schedule.FormatClock(start), schedule.FormatClock(end), date)
	}
	return nil
}

func (s *Service) bookedIntervals(ctx context.Context, storeID int64, date string) (map[int64][]schedule.Interval, error) {
	reservations, err := s.repo.GetActiveReservationsByStoreAndDate(ctx, storeID, date)
	if err != nil {
		return nil, err
	}

	booked := make(map[int64][]schedule.Interval, len(reservations))
	for _, res := range reservations {
		start, err := schedule.ParseClock(res.StartTime)
		if err != nil {
			return nil, fmt.Errorf("reservation %d start: %w", res.ID, err)
		}
		end, err := schedule.ParseClock(res.EndTime)
		if err != nil {
			return nil, fmt.Errorf("reservation %d end: %w", res.ID, err)
		}
		booked[res.StaffID] = append(booked[res.StaffID], schedule.Interval{Start: start, End: end})
	}
	return booked, nil
}

func (s *Service) publish(eventType string, res *models.Reservation) {
	if s.bus == nil || eventType == "" {
		return
	}
	if err := s.bus.PublishJSON(eventType, eventPayload(res)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", res.ID).Msg("publish event error")
	}
}

func (s *Service) enqueueSync(ctx context.Context, action string, res *models.Reservation) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueReservationSync(ctx, action, res); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", res.ID).Str("action", action).Msg("sync enqueue error")
	}
}
