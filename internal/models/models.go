package models

import "time"

// DayHours is one weekday's configured business window ("15:04" wall clock).
type DayHours struct {
	IsOpen bool   `json:"is_open" yaml:"is_open"`
	Open   string `json:"open" yaml:"open"`
	Close  string `json:"close" yaml:"close"`
}

// Store holds a tenant's schedule configuration and temporal booking policy.
// Weekdays follow time.Weekday numbering: 0=Sunday .. 6=Saturday.
type Store struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Timezone            string           `json:"timezone"`
	BusinessHours       map[int]DayHours `json:"business_hours"`
	RegularHolidays     []int            `json:"regular_holidays"`
	TemporaryHolidays   []string         `json:"temporary_holidays"`  // "2006-01-02"
	TemporaryOpenDays   []string         `json:"temporary_open_days"` // overrides holidays
	SlotDurationMinutes int              `json:"slot_duration_minutes"`
	AdvanceBookingDays  int              `json:"advance_booking_days"`
	CancelDeadlineHours int              `json:"cancel_deadline_hours"`
	MinLeadTimeMinutes  int              `json:"min_lead_time_minutes"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Staff is a bookable practitioner. Schedule fields are local wall clock.
type Staff struct {
	ID          int64     `json:"id"`
	StoreID     int64     `json:"store_id"`
	Name        string    `json:"name"`
	CalendarID  string    `json:"calendar_id"`
	WorkingDays []int     `json:"working_days"`
	WorkStart   string    `json:"work_start"`
	WorkEnd     string    `json:"work_end"`
	BreakStart  string    `json:"break_start"` // empty when no break configured
	BreakEnd    string    `json:"break_end"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reservation is a half-open [StartTime, EndTime) slot held by a customer
// with a specific staff member on a civil date. Never physically deleted;
// cancellation is a status change.
type Reservation struct {
	ID           int64     `json:"id"`
	StoreID      int64     `json:"store_id"`
	StaffID      int64     `json:"staff_id"`
	CustomerID   int64     `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	ServiceName  string    `json:"service_name"`
	Date         string    `json:"date"`       // "2006-01-02", civil date in store tz
	StartTime    string    `json:"start_time"` // "15:04"
	EndTime      string    `json:"end_time"`
	Status       string    `json:"status"`
	CalendarID   string    `json:"calendar_id"` // external calendar cross-reference
	EventID      string    `json:"event_id"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Customer carries the visit counters bumped by status transitions.
type Customer struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Name      string    `json:"name"`
	Visits    int64     `json:"visits"`
	Cancels   int64     `json:"cancels"`
	NoShows   int64     `json:"no_shows"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
