package calendar

import "context"

// Event is the external calendar representation of a reservation. Times are
// wall clock in the event's timezone.
type Event struct {
	Summary     string
	Description string
	Date        string // "2006-01-02"
	StartTime   string // "15:04"
	EndTime     string
	Timezone    string
}

// Client is the external calendar surface the sync worker drives. CreateEvent
// returns the provider's event id for the cross-reference stored alongside
// the reservation.
type Client interface {
	CreateEvent(ctx context.Context, calendarID string, ev *Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
