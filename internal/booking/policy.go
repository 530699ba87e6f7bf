package booking

import (
	"fmt"
	"time"

	"reservly/internal/models"
	"reservly/internal/schedule"
)

// CheckCreatePolicy validates the advance-booking rule for a candidate slot:
// the date may be at most advanceBookingDays in the future (boundary
// inclusive), not in the past, and a same-day start must leave at least the
// configured lead time — with zero lead, strictly in the future.
func CheckCreatePolicy(store *models.Store, date, startTime string, now time.Time) error {
	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		return fmt.Errorf("load store timezone: %w", err)
	}

	day, err := schedule.ParseDate(date, loc)
	if err != nil {
		return validationError("invalid date %q", date)
	}
	startMinutes, err := schedule.ParseClock(startTime)
	if err != nil {
		return validationError("invalid start time %q", startTime)
	}

	local := now.In(loc)
	days := schedule.DaysBetween(local, day)

	advance := store.AdvanceBookingDays
	if advance <= 0 {
		advance = models.DefaultAdvanceBookingDays
	}

	if days < 0 {
		return policyViolation(ReasonPastDate, "date %s is in the past", date)
	}
	if days > advance {
		return policyViolation(ReasonAdvanceWindow, "date %s exceeds the %d-day booking window", date, advance)
	}

	if days == 0 {
		startAt := day.Add(time.Duration(startMinutes) * time.Minute)
		lead := time.Duration(store.MinLeadTimeMinutes) * time.Minute
		if !startAt.After(local.Add(lead)) {
			return policyViolation(ReasonLeadTime, "start %s is too soon to book", startTime)
		}
	}

	return nil
}

// CheckCancelPolicy validates the cancellation deadline against a
// reservation's start. At exactly cancelDeadlineHours before start it is
// already too late; one second earlier is still allowed. Reschedule reuses
// this check against the old slot so the deadline cannot be bypassed.
func CheckCancelPolicy(store *models.Store, res *models.Reservation, now time.Time) error {
	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		return fmt.Errorf("load store timezone: %w", err)
	}

	day, err := schedule.ParseDate(res.Date, loc)
	if err != nil {
		return validationError("invalid reservation date %q", res.Date)
	}
	startMinutes, err := schedule.ParseClock(res.StartTime)
	if err != nil {
		return validationError("invalid reservation start %q", res.StartTime)
	}

	deadline := store.CancelDeadlineHours
	if deadline <= 0 {
		deadline = models.DefaultCancelDeadlineHours
	}

	startAt := day.Add(time.Duration(startMinutes) * time.Minute)
	remaining := startAt.Sub(now.In(loc))
	if remaining <= time.Duration(deadline)*time.Hour {
		return policyViolation(ReasonCancelDeadline,
			"reservation starts within %d hours and can no longer be changed", deadline)
	}

	return nil
}
