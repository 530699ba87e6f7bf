package schedule

import (
	"fmt"
	"time"

	"reservly/internal/models"
)

// DayWindow is the resolved business window for one civil date.
// Open and Close are minutes since midnight in the store's timezone.
type DayWindow struct {
	Date   string
	IsOpen bool
	Open   int
	Close  int
}

// ResolveDay turns a store's configuration into the effective window for the
// given date. Precedence: advance-booking cutoff, then temporary open days,
// then temporary/regular holidays, then weekday business hours. A date past
// the advance window is reported closed regardless of configured hours.
func ResolveDay(store *models.Store, date string, now time.Time) (DayWindow, error) {
	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		return DayWindow{}, fmt.Errorf("load store timezone: %w", err)
	}

	day, err := ParseDate(date, loc)
	if err != nil {
		return DayWindow{}, err
	}

	win := DayWindow{Date: date}

	advance := store.AdvanceBookingDays
	if advance <= 0 {
		advance = models.DefaultAdvanceBookingDays
	}
	if DaysBetween(now.In(loc), day) > advance {
		return win, nil
	}
	if DaysBetween(now.In(loc), day) < 0 {
		return win, nil
	}

	weekday := int(day.Weekday())

	if containsDate(store.TemporaryOpenDays, date) {
		// Forced open: use the weekday's configured hours when present,
		// otherwise the default window.
		win.IsOpen = true
		win.Open, win.Close = weekdayHours(store, weekday)
		return win, nil
	}

	if containsDate(store.TemporaryHolidays, date) || containsInt(store.RegularHolidays, weekday) {
		return win, nil
	}

	if hours, ok := store.BusinessHours[weekday]; ok {
		if !hours.IsOpen {
			return win, nil
		}
		open, err := ParseClock(hours.Open)
		if err != nil {
			return DayWindow{}, err
		}
		close, err := ParseClock(hours.Close)
		if err != nil {
			return DayWindow{}, err
		}
		win.IsOpen = true
		win.Open, win.Close = open, close
		return win, nil
	}

	win.IsOpen = true
	win.Open, win.Close = defaultWindow()
	return win, nil
}

func weekdayHours(store *models.Store, weekday int) (int, int) {
	if hours, ok := store.BusinessHours[weekday]; ok && hours.IsOpen {
		open, err1 := ParseClock(hours.Open)
		close, err2 := ParseClock(hours.Close)
		if err1 == nil && err2 == nil {
			return open, close
		}
	}
	return defaultWindow()
}

func defaultWindow() (int, int) {
	open, _ := ParseClock(models.DefaultOpenTime)
	close, _ := ParseClock(models.DefaultCloseTime)
	return open, close
}

func containsDate(dates []string, date string) bool {
	for _, d := range dates {
		if d == date {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
