// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/graph"
)

// Attendee is the caller-facing shape of an event attendee.
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Calendar implements the calendar tools.
type Calendar struct {
	graph   *graph.Client
	baseURL string
}

// NewCalendar creates the calendar tool set.
func NewCalendar(graphClient *graph.Client, baseURL string) *Calendar {
	return &Calendar{graph: graphClient, baseURL: baseURL}
}

// ListCalendarsArgs are the arguments for calendar_list_calendars.
type ListCalendarsArgs struct {
	Pagination *graph.Pagination `json:"pagination,omitempty"`
}

// ListCalendars lists the user's calendars.
func (c *Calendar) ListCalendars(ctx context.Context, token string, args ListCalendarsArgs) (map[string]any, error) {
	payload, err := c.graph.RequestJSON(ctx, http.MethodGet, c.baseURL+"/me/calendars", token,
		graph.WithQuery(args.Pagination.QueryParams()))
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0)
	for _, item := range graph.Items(payload) {
		items = append(items, map[string]any{
			"id":    item["id"],
			"name":  item["name"],
			"owner": mapRecipient(item["owner"]),
		})
	}
	return map[string]any{
		"items":       items,
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// ListEventsArgs are the arguments for calendar_list_events.
type ListEventsArgs struct {
	CalendarID       string            `json:"calendar_id,omitempty"`
	StartDatetime    string            `json:"start_datetime"`
	EndDatetime      string            `json:"end_datetime"`
	IncludeCancelled bool              `json:"include_cancelled,omitempty"`
	Pagination       *graph.Pagination `json:"pagination,omitempty"`
}

// ListEvents lists events within a window, on the default or a named
// calendar.
func (c *Calendar) ListEvents(ctx context.Context, token string, args ListEventsArgs) (map[string]any, error) {
	if args.StartDatetime == "" || args.EndDatetime == "" {
		return nil, errors.Validation("start_datetime and end_datetime are required")
	}

	requestURL := c.baseURL + "/me/events"
	if args.CalendarID != "" {
		requestURL = fmt.Sprintf("%s/me/calendars/%s/events", c.baseURL, args.CalendarID)
	}

	filters := []string{
		fmt.Sprintf("start/dateTime ge '%s'", args.StartDatetime),
		fmt.Sprintf("end/dateTime le '%s'", args.EndDatetime),
	}
	if !args.IncludeCancelled {
		filters = append(filters, "isCancelled eq false")
	}
	query := args.Pagination.QueryParams()
	query.Set("$filter", strings.Join(filters, " and "))

	payload, err := c.graph.RequestJSON(ctx, http.MethodGet, requestURL, token, graph.WithQuery(query))
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0)
	for _, item := range graph.Items(payload) {
		items = append(items, mapEvent(item))
	}
	return map[string]any{
		"items":       items,
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// GetEventArgs are the arguments for calendar_get_event.
type GetEventArgs struct {
	EventID string `json:"event_id"`
}

// GetEvent fetches a single event.
func (c *Calendar) GetEvent(ctx context.Context, token string, args GetEventArgs) (map[string]any, error) {
	if args.EventID == "" {
		return nil, errors.Validation("event_id is required")
	}
	payload, err := c.graph.RequestJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/me/events/%s", c.baseURL, args.EventID), token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"event": mapEvent(payload)}, nil
}

// CreateEventArgs are the arguments for calendar_create_event.
type CreateEventArgs struct {
	CalendarID            string       `json:"calendar_id,omitempty"`
	Subject               string       `json:"subject"`
	Body                  *MessageBody `json:"body,omitempty"`
	StartDatetime         string       `json:"start_datetime"`
	EndDatetime           string       `json:"end_datetime"`
	Timezone              string       `json:"timezone,omitempty"`
	Location              string       `json:"location,omitempty"`
	Attendees             []Attendee   `json:"attendees,omitempty"`
	IsOnlineMeeting       bool         `json:"is_online_meeting,omitempty"`
	OnlineMeetingProvider string       `json:"online_meeting_provider,omitempty"`
	TransactionID         string       `json:"transaction_id,omitempty"`
}

// CreateEvent creates an event on the default or a named calendar.
func (c *Calendar) CreateEvent(ctx context.Context, token string, args CreateEventArgs) (map[string]any, error) {
	provider := args.OnlineMeetingProvider
	if provider == "" {
		provider = "teamsForBusiness"
	}

	attendees := make([]map[string]any, 0, len(args.Attendees))
	for _, attendee := range args.Attendees {
		attendees = append(attendees, map[string]any{
			"emailAddress": map[string]any{
				"address": attendee.Email,
				"name":    attendee.Name,
			},
			"type": "required",
		})
	}

	body := map[string]any{
		"subject":               args.Subject,
		"body":                  mapBodyOut(args.Body),
		"start":                 mapDateTime(args.StartDatetime, args.Timezone),
		"end":                   mapDateTime(args.EndDatetime, args.Timezone),
		"location":              map[string]any{"displayName": args.Location},
		"attendees":             attendees,
		"isOnlineMeeting":       args.IsOnlineMeeting,
		"onlineMeetingProvider": provider,
	}

	requestURL := c.baseURL + "/me/events"
	if args.CalendarID != "" {
		requestURL = fmt.Sprintf("%s/me/calendars/%s/events", c.baseURL, args.CalendarID)
	}

	payload, err := c.graph.RequestJSON(ctx, http.MethodPost, requestURL, token, graph.WithJSONBody(body))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"event_id": payload["id"],
		"event":    mapEvent(payload),
	}, nil
}

// UpdateEventArgs are the arguments for calendar_update_event.
type UpdateEventArgs struct {
	EventID        string         `json:"event_id"`
	Patch          map[string]any `json:"patch"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// UpdateEvent applies a raw patch to an event.
func (c *Calendar) UpdateEvent(ctx context.Context, token string, args UpdateEventArgs) (map[string]any, error) {
	if args.EventID == "" {
		return nil, errors.Validation("event_id is required")
	}
	_, err := c.graph.RequestJSON(ctx, http.MethodPatch,
		fmt.Sprintf("%s/me/events/%s", c.baseURL, args.EventID), token,
		graph.WithJSONBody(args.Patch))
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

// DeleteEventArgs are the arguments for calendar_delete_event.
type DeleteEventArgs struct {
	EventID string `json:"event_id"`
}

// DeleteEvent deletes an event.
func (c *Calendar) DeleteEvent(ctx context.Context, token string, args DeleteEventArgs) (map[string]any, error) {
	if args.EventID == "" {
		return nil, errors.Validation("event_id is required")
	}
	_, err := c.graph.RequestJSON(ctx, http.MethodDelete,
		fmt.Sprintf("%s/me/events/%s", c.baseURL, args.EventID), token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

// RespondToInviteArgs are the arguments for calendar_respond_to_invite.
type RespondToInviteArgs struct {
	EventID        string `json:"event_id"`
	Response       string `json:"response"`
	Comment        string `json:"comment,omitempty"`
	SendResponse   *bool  `json:"send_response,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RespondToInvite accepts, tentatively accepts, or declines an invite.
func (c *Calendar) RespondToInvite(ctx context.Context, token string, args RespondToInviteArgs) (map[string]any, error) {
	if args.EventID == "" {
		return nil, errors.Validation("event_id is required")
	}

	endpoints := map[string]string{
		"accept":    "accept",
		"tentative": "tentativelyAccept",
		"decline":   "decline",
	}
	endpoint, ok := endpoints[args.Response]
	if !ok {
		return nil, errors.Validation("response must be accept, tentative, or decline")
	}

	sendResponse := true
	if args.SendResponse != nil {
		sendResponse = *args.SendResponse
	}

	_, err := c.graph.RequestJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/me/events/%s/%s", c.baseURL, args.EventID, endpoint), token,
		graph.WithJSONBody(map[string]any{
			"comment":      args.Comment,
			"sendResponse": sendResponse,
		}))
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

// FindAvailabilityArgs are the arguments for calendar_find_availability.
type FindAvailabilityArgs struct {
	Attendees       []Attendee `json:"attendees"`
	StartDatetime   string     `json:"start_datetime"`
	EndDatetime     string     `json:"end_datetime"`
	IntervalMinutes int        `json:"interval_minutes,omitempty"`
}

// FindAvailability queries attendee schedules for free/busy slots.
func (c *Calendar) FindAvailability(ctx context.Context, token string, args FindAvailabilityArgs) (map[string]any, error) {
	interval := args.IntervalMinutes
	if interval == 0 {
		interval = 30
	}
	schedules := make([]string, 0, len(args.Attendees))
	for _, attendee := range args.Attendees {
		schedules = append(schedules, attendee.Email)
	}

	payload, err := c.graph.RequestJSON(ctx, http.MethodPost, c.baseURL+"/me/calendar/getSchedule", token,
		graph.WithJSONBody(map[string]any{
			"schedules":                schedules,
			"startTime":                map[string]any{"dateTime": args.StartDatetime, "timeZone": "UTC"},
			"endTime":                  map[string]any{"dateTime": args.EndDatetime, "timeZone": "UTC"},
			"availabilityViewInterval": interval,
		}))
	if err != nil {
		return nil, err
	}

	slots := make([]map[string]any, 0)
	for _, schedule := range graph.Items(payload) {
		scheduleItems, _ := schedule["scheduleItems"].([]any)
		for _, entry := range scheduleItems {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			start, _ := item["start"].(map[string]any)
			end, _ := item["end"].(map[string]any)
			slots = append(slots, map[string]any{
				"start_datetime": start["dateTime"],
				"end_datetime":   end["dateTime"],
				"is_available":   item["status"] == "free",
			})
		}
	}
	return map[string]any{"slots": slots}, nil
}

func mapDateTime(value, timezone string) map[string]any {
	if timezone == "" {
		timezone = "UTC"
	}
	return map[string]any{
		"dateTime": value,
		"timeZone": timezone,
	}
}

func mapEvent(event map[string]any) map[string]any {
	body, _ := event["body"].(map[string]any)
	start, _ := event["start"].(map[string]any)
	end, _ := event["end"].(map[string]any)
	location, _ := event["location"].(map[string]any)

	contentType, _ := body["contentType"].(string)
	if contentType == "" {
		contentType = "html"
	}

	attendees := make([]map[string]any, 0)
	if raw, ok := event["attendees"].([]any); ok {
		for _, entry := range raw {
			attendee, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			email, _ := attendee["emailAddress"].(map[string]any)
			attendees = append(attendees, map[string]any{
				"email": email["address"],
				"name":  email["name"],
			})
		}
	}

	return map[string]any{
		"id":      event["id"],
		"subject": event["subject"],
		"body": map[string]any{
			"content_type": strings.ToLower(contentType),
			"content":      body["content"],
		},
		"start_datetime": start["dateTime"],
		"end_datetime":   end["dateTime"],
		"timezone":       start["timeZone"],
		"location":       location["displayName"],
		"attendees":      attendees,
		"is_cancelled":   event["isCancelled"],
	}
}
