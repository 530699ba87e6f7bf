package schedule

import (
	"fmt"
	"time"

	"reservly/internal/models"
)

// Interval is a booked half-open [Start, End) in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Slot is one grid point of the availability response.
type Slot struct {
	Time      string  `json:"time"`
	Available bool    `json:"available"`
	StaffIDs  []int64 `json:"staff_ids"`
}

// DayAvailability is the per-date slot list returned to clients.
type DayAvailability struct {
	Date   string `json:"date"`
	IsOpen bool   `json:"is_open"`
	Slots  []Slot `json:"slots"`
}

// staffSchedule is a staff member's parsed working pattern.
type staffSchedule struct {
	id          int64
	workingDays []int
	workStart   int
	workEnd     int
	breakStart  int
	breakEnd    int
	hasBreak    bool
}

func newStaffSchedule(s *models.Staff) (staffSchedule, error) {
	ss := staffSchedule{id: s.ID, workingDays: s.WorkingDays}

	var err error
	if ss.workStart, err = ParseClock(s.WorkStart); err != nil {
		return ss, fmt.Errorf("staff %d work start: %w", s.ID, err)
	}
	if ss.workEnd, err = ParseClock(s.WorkEnd); err != nil {
		return ss, fmt.Errorf("staff %d work end: %w", s.ID, err)
	}
	if s.BreakStart != "" && s.BreakEnd != "" {
		if ss.breakStart, err = ParseClock(s.BreakStart); err != nil {
			return ss, fmt.Errorf("staff %d break start: %w", s.ID, err)
		}
		if ss.breakEnd, err = ParseClock(s.BreakEnd); err != nil {
			return ss, fmt.Errorf("staff %d break end: %w", s.ID, err)
		}
		ss.hasBreak = true
	}
	return ss, nil
}

// canTake reports whether the staff member is free for [start, start+duration)
// on the given weekday, against their booked intervals for that date.
func (ss staffSchedule) canTake(weekday, start, duration int, booked []Interval) bool {
	end := start + duration

	if !containsInt(ss.workingDays, weekday) {
		return false
	}
	if start < ss.workStart || end > ss.workEnd {
		return false
	}
	if ss.hasBreak && Overlaps(start, end, ss.breakStart, ss.breakEnd) {
		return false
	}
	for _, iv := range booked {
		if Overlaps(start, end, iv.Start, iv.End) {
			return false
		}
	}
	return true
}

// StaffCanTake reports whether the staff member's working pattern admits
// [start, end) on the given weekday, ignoring existing bookings.
func StaffCanTake(s *models.Staff, weekday, start, end int) (bool, error) {
	ss, err := newStaffSchedule(s)
	if err != nil {
		return false, err
	}
	return ss.canTake(weekday, start, end-start, nil), nil
}

// BuildDaySlots generates the bookable grid for one resolved day. booked maps
// staff id to that staff member's active reservations on the date. For the
// store's "today", grid points at or before now are suppressed.
func BuildDaySlots(store *models.Store, win DayWindow, staff []*models.Staff, booked map[int64][]Interval, serviceDuration int, now time.Time) (DayAvailability, error) {
	day := DayAvailability{Date: win.Date, IsOpen: win.IsOpen, Slots: []Slot{}}
	if !win.IsOpen {
		return day, nil
	}

	step := store.SlotDurationMinutes
	if step <= 0 {
		step = models.DefaultSlotDurationMinutes
	}
	if serviceDuration <= 0 {
		serviceDuration = step
	}

	loc, err := time.LoadLocation(store.Timezone)
	if err != nil {
		return day, fmt.Errorf("load store timezone: %w", err)
	}
	date, err := ParseDate(win.Date, loc)
	if err != nil {
		return day, err
	}

	local := now.In(loc)
	isToday := FormatDate(local) == win.Date
	nowMinutes := local.Hour()*60 + local.Minute()

	schedules := make([]staffSchedule, 0, len(staff))
	for _, s := range staff {
		if !s.IsActive {
			continue
		}
		ss, err := newStaffSchedule(s)
		if err != nil {
			return day, err
		}
		schedules = append(schedules, ss)
	}

	weekday := int(date.Weekday())
	for start := win.Open; start < win.Close; start += step {
		if isToday && start <= nowMinutes {
			continue
		}

		slot := Slot{Time: FormatClock(start), StaffIDs: []int64{}}
		for _, ss := range schedules {
			if ss.canTake(weekday, start, serviceDuration, booked[ss.id]) {
				slot.StaffIDs = append(slot.StaffIDs, ss.id)
			}
		}
		slot.Available = len(slot.StaffIDs) > 0
		day.Slots = append(day.Slots, slot)
	}

	return day, nil
}
