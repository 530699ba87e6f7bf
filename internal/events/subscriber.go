package events

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// CustomerStatsRecorder bumps per-customer visit counters.
type CustomerStatsRecorder interface {
	BumpCustomerStats(ctx context.Context, customerID int64, status string) error
}

// SubscribeCustomerStats wires the counter updates to the terminal
// reservation events. Completed bumps visits, canceled bumps cancels, no-show
// bumps no-shows; counting failures are logged and never propagate back to
// the publisher.
func SubscribeCustomerStats(bus *Bus, rec CustomerStatsRecorder, logger *zerolog.Logger) {
	handler := func(eventType string, data []byte) {
		var payload ReservationPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			logger.Error().Err(err).Str("event_type", eventType).Msg("decode reservation event")
			return
		}
		if payload.CustomerID == 0 {
			return
		}
		if err := rec.BumpCustomerStats(context.Background(), payload.CustomerID, payload.Status); err != nil {
			logger.Error().Err(err).Int64("customer_id", payload.CustomerID).
				Str("status", payload.Status).Msg("bump customer stats")
		}
	}

	bus.Subscribe(EventReservationCompleted, handler)
	bus.Subscribe(EventReservationCanceled, handler)
	bus.Subscribe(EventReservationNoShow, handler)
}
