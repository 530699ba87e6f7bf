package models

// Reservation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusNoShow    = "no_show"
)

// Sync task actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Sync task statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
	TaskDead      = "dead"
)

const (
	// DefaultMaxAttempts is the retry ceiling before a task is dead-lettered.
	DefaultMaxAttempts = 10

	// DefaultSlotDurationMinutes is used when a store has no slot size configured.
	DefaultSlotDurationMinutes = 30

	// DefaultAdvanceBookingDays caps how far into the future a booking may land.
	DefaultAdvanceBookingDays = 30

	// DefaultCancelDeadlineHours is the cutoff before start after which
	// cancellation is refused.
	DefaultCancelDeadlineHours = 24

	// DefaultOpenTime/DefaultCloseTime form the fallback business window for
	// weekdays with no configured hours.
	DefaultOpenTime  = "09:00"
	DefaultCloseTime = "18:00"
)

// allowedTransitions encodes the reservation status machine. Creation always
// lands on pending; everything else goes through here.
var allowedTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCanceled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCanceled, StatusNoShow},
}

// CanTransition reports whether a reservation may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActiveStatus reports whether a reservation still occupies its slot.
func IsActiveStatus(status string) bool {
	return status != StatusCanceled && status != StatusNoShow
}

// IsTerminalTaskStatus reports whether a sync task will never run again on its own.
func IsTerminalTaskStatus(status string) bool {
	return status == TaskSucceeded || status == TaskDead
}
