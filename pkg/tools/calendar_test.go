// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/graphmcp/pkg/errors"
)

func TestCalendarListEvents_WindowFilter(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/events", map[string]any{
		"value": []any{
			map[string]any{
				"id":      "event-1",
				"subject": "Standup",
				"body":    map[string]any{"contentType": "HTML", "content": "<p>daily</p>"},
				"start":   map[string]any{"dateTime": "2026-08-01T09:00:00", "timeZone": "UTC"},
				"end":     map[string]any{"dateTime": "2026-08-01T09:15:00", "timeZone": "UTC"},
				"location": map[string]any{
					"displayName": "Room 1",
				},
				"isCancelled": false,
			},
		},
	})
	calendar := NewCalendar(newToolsClient(), stub.server.URL)

	result, err := calendar.ListEvents(context.Background(), "token-1", ListEventsArgs{
		StartDatetime: "2026-08-01T00:00:00Z",
		EndDatetime:   "2026-08-02T00:00:00Z",
	})
	require.NoError(t, err)

	items := result["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Standup", items[0]["subject"])
	assert.Equal(t, "Room 1", items[0]["location"])

	req := stub.lastRequest(t)
	assert.Equal(t,
		"start/dateTime ge '2026-08-01T00:00:00Z' and end/dateTime le '2026-08-02T00:00:00Z' and isCancelled eq false",
		req.query.Get("$filter"))
}

func TestCalendarListEvents_RequiresWindow(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	calendar := NewCalendar(newToolsClient(), stub.server.URL)

	_, err := calendar.ListEvents(context.Background(), "token-1", ListEventsArgs{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.FromErr(err).Code)
}

func TestCalendarCreateEvent(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("POST", "/me/calendars/cal-1/events", map[string]any{
		"id":      "event-1",
		"subject": "Review",
		"start":   map[string]any{"dateTime": "2026-08-01T10:00:00", "timeZone": "Europe/Berlin"},
		"end":     map[string]any{"dateTime": "2026-08-01T11:00:00", "timeZone": "Europe/Berlin"},
	})
	calendar := NewCalendar(newToolsClient(), stub.server.URL)

	result, err := calendar.CreateEvent(context.Background(), "token-1", CreateEventArgs{
		CalendarID:    "cal-1",
		Subject:       "Review",
		StartDatetime: "2026-08-01T10:00:00",
		EndDatetime:   "2026-08-01T11:00:00",
		Timezone:      "Europe/Berlin",
		Attendees:     []Attendee{{Email: "a@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "event-1", result["event_id"])

	req := stub.lastRequest(t)
	var sent map[string]any
	require.NoError(t, jsonUnmarshal(req.body, &sent))
	start := sent["start"].(map[string]any)
	assert.Equal(t, "Europe/Berlin", start["timeZone"])
	assert.Equal(t, "teamsForBusiness", sent["onlineMeetingProvider"])
	attendees := sent["attendees"].([]any)
	require.Len(t, attendees, 1)
}

func TestCalendarRespondToInvite(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	calendar := NewCalendar(newToolsClient(), stub.server.URL)

	_, err := calendar.RespondToInvite(context.Background(), "token-1", RespondToInviteArgs{
		EventID:  "event-1",
		Response: "tentative",
	})
	require.NoError(t, err)
	assert.Equal(t, "/me/events/event-1/tentativelyAccept", stub.lastRequest(t).path)

	_, err = calendar.RespondToInvite(context.Background(), "token-1", RespondToInviteArgs{
		EventID:  "event-1",
		Response: "maybe",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.FromErr(err).Code)
}

func TestCalendarUpdateAndDelete(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	calendar := NewCalendar(newToolsClient(), stub.server.URL)

	result, err := calendar.UpdateEvent(context.Background(), "token-1", UpdateEventArgs{
		EventID: "event-1",
		Patch:   map[string]any{"subject": "Renamed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "PATCH", stub.lastRequest(t).method)

	result, err = calendar.DeleteEvent(context.Background(), "token-1", DeleteEventArgs{EventID: "event-1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "DELETE", stub.lastRequest(t).method)
}

func TestCalendarFindAvailability(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("POST", "/me/calendar/getSchedule", map[string]any{
		"value": []any{
			map[string]any{
				"scheduleItems": []any{
					map[string]any{
						"start":  map[string]any{"dateTime": "2026-08-01T09:00:00"},
						"end":    map[string]any{"dateTime": "2026-08-01T09:30:00"},
						"status": "free",
					},
					map[string]any{
						"start":  map[string]any{"dateTime": "2026-08-01T09:30:00"},
						"end":    map[string]any{"dateTime": "2026-08-01T10:00:00"},
						"status": "busy",
					},
				},
			},
		},
	})
	calendar := NewCalendar(newToolsClient(), stub.server.URL)

	result, err := calendar.FindAvailability(context.Background(), "token-1", FindAvailabilityArgs{
		Attendees:     []Attendee{{Email: "a@example.com"}},
		StartDatetime: "2026-08-01T09:00:00",
		EndDatetime:   "2026-08-01T17:00:00",
	})
	require.NoError(t, err)

	slots := result["slots"].([]map[string]any)
	require.Len(t, slots, 2)
	assert.Equal(t, true, slots[0]["is_available"])
	assert.Equal(t, false, slots[1]["is_available"])

	var sent map[string]any
	require.NoError(t, jsonUnmarshal(stub.lastRequest(t).body, &sent))
	assert.Equal(t, float64(30), sent["availabilityViewInterval"])
}
