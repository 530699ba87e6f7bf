package booking

import (
	"reservly/internal/events"
	"reservly/internal/models"
)

// statusEvent maps a reservation status to its lifecycle event type.
func statusEvent(status string) string {
	switch status {
	case models.StatusConfirmed:
		return events.EventReservationConfirmed
	case models.StatusCompleted:
		return events.EventReservationCompleted
	case models.StatusCanceled:
		return events.EventReservationCanceled
	case models.StatusNoShow:
		return events.EventReservationNoShow
	}
	return ""
}

func eventPayload(res *models.Reservation) events.ReservationPayload {
	return events.ReservationPayload{
		ReservationID: res.ID,
		StoreID:       res.StoreID,
		StaffID:       res.StaffID,
		CustomerID:    res.CustomerID,
		Date:          res.Date,
		StartTime:     res.StartTime,
		Status:        res.Status,
	}
}
