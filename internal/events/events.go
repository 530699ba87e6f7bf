package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Reservation lifecycle event types.
const (
	EventReservationCreated     = "reservation_created"
	EventReservationConfirmed   = "reservation_confirmed"
	EventReservationCompleted   = "reservation_completed"
	EventReservationCanceled    = "reservation_canceled"
	EventReservationNoShow      = "reservation_no_show"
	EventReservationRescheduled = "reservation_rescheduled"
)

// ReservationPayload is what subscribers receive for every reservation event.
type ReservationPayload struct {
	ReservationID int64  `json:"reservation_id"`
	StoreID       int64  `json:"store_id"`
	StaffID       int64  `json:"staff_id"`
	CustomerID    int64  `json:"customer_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
}

// Handler consumes one event. It runs on the publisher's goroutine; slow
// handlers slow the publisher.
type Handler func(eventType string, data []byte)

// Bus is a minimal in-process pub/sub. Subscriptions are expected at startup;
// publishing is safe from any goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zerolog.Logger
}

func NewBus(logger *zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type. An empty event type
// subscribes to everything.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers raw bytes to subscribers of the type and to wildcard
// subscribers.
func (b *Bus) Publish(eventType string, data []byte) {
	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[eventType]...)
	handlers = append(handlers, b.handlers[""]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(eventType, data)
	}
	b.logger.Debug().Str("event_type", eventType).Int("handlers", len(handlers)).Msg("event published")
}

// PublishJSON marshals the payload and publishes it.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(eventType, data)
	return nil
}
