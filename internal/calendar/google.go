package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrEventNotFound marks an update or delete against an event the provider no
// longer has. Callers may treat a delete of a missing event as done.
var ErrEventNotFound = errors.New("calendar event not found")

// GoogleClient drives Google Calendar through a service account.
type GoogleClient struct {
	service *calendarapi.Service
}

// NewGoogleClient builds a client from a service account credentials file.
func NewGoogleClient(ctx context.Context, credentialsFile string) (*GoogleClient, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, calendarapi.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := calendarapi.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}

	return &GoogleClient{service: srv}, nil
}

func (c *GoogleClient) CreateEvent(ctx context.Context, calendarID string, ev *Event) (string, error) {
	created, err := c.service.Events.Insert(calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func (c *GoogleClient) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *Event) error {
	_, err := c.service.Events.Update(calendarID, eventID, toGoogleEvent(ev)).Context(ctx).Do()
	if isGone(err) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if isGone(err) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// isGone covers both 404 and 410; Google returns 410 for events deleted on
// the provider side.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}

func toGoogleEvent(ev *Event) *calendarapi.Event {
	return &calendarapi.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &calendarapi.EventDateTime{
			DateTime: ev.Date + "T" + ev.StartTime + ":00",
			TimeZone: ev.Timezone,
		},
		End: &calendarapi.EventDateTime{
			DateTime: ev.Date + "T" + ev.EndTime + ":00",
			TimeZone: ev.Timezone,
		},
	}
}
