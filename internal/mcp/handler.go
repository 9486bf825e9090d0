package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/johnrirwin/agenda/internal/logging"
	"github.com/johnrirwin/agenda/internal/models"
	"github.com/johnrirwin/agenda/internal/timewindow"
)

// EventSource produces the merged event list on demand.
type EventSource interface {
	Events(ctx context.Context) []models.Event
	Sources() []models.SourceInfo
}

type Handler struct {
	source    EventSource
	filter    *timewindow.Filter
	now       func() time.Time
	days      int
	soonHours int
	logger    *logging.Logger
}

func NewHandler(source EventSource, filter *timewindow.Filter, now func() time.Time, days, soonHours int, logger *logging.Logger) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		source:    source,
		filter:    filter,
		now:       now,
		days:      days,
		soonHours: soonHours,
		logger:    logger,
	}
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type GetEventsParams struct {
	Source string `json:"source"`
	Search string `json:"search"`
}

var emptySchema = json.RawMessage(`{
	"type": "object",
	"properties": {}
}`)

func (h *Handler) GetTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_events",
			Description: "Get all upcoming public events from every configured source, sorted by start date.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"source": {
						"type": "string",
						"description": "Only return events from this source key"
					},
					"search": {
						"type": "string",
						"description": "Case-insensitive text to look for in titles and descriptions"
					}
				}
			}`),
		},
		{
			Name:        "get_upcoming_days",
			Description: "Get the events of the next days, grouped by day.",
			InputSchema: emptySchema,
		},
		{
			Name:        "get_events_starting_soon",
			Description: "Get the events starting within the next few hours.",
			InputSchema: emptySchema,
		},
		{
			Name:        "get_event_sources",
			Description: "Get the list of configured event sources.",
			InputSchema: emptySchema,
		},
	}
}

func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (interface{}, error) {
	switch name {
	case "get_events":
		return h.handleGetEvents(ctx, arguments)
	case "get_upcoming_days":
		return h.filter.BucketByDay(h.source.Events(ctx), h.days, h.now()), nil
	case "get_events_starting_soon":
		return h.filter.FilterStartingSoon(h.source.Events(ctx), h.soonHours, h.now()), nil
	case "get_event_sources":
		sources := h.source.Sources()
		return map[string]interface{}{
			"sources": sources,
			"count":   len(sources),
		}, nil
	default:
		return nil, &ToolError{Message: "Unknown tool: " + name}
	}
}

func (h *Handler) handleGetEvents(ctx context.Context, arguments json.RawMessage) (interface{}, error) {
	var params GetEventsParams
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, &ToolError{Message: "Invalid arguments: " + err.Error()}
		}
	}

	search := strings.ToLower(strings.TrimSpace(params.Search))
	events := make([]models.Event, 0)
	for _, e := range h.source.Events(ctx) {
		if params.Source != "" && e.Source != params.Source {
			continue
		}
		if search != "" && !matches(e, search) {
			continue
		}
		events = append(events, e)
	}

	return map[string]interface{}{
		"events": events,
		"count":  len(events),
	}, nil
}

func matches(e models.Event, search string) bool {
	return strings.Contains(strings.ToLower(e.Title), search) ||
		strings.Contains(strings.ToLower(e.LongDescription), search)
}

type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}
