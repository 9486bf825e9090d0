package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/johnrirwin/agenda/internal/calendar"
	"github.com/johnrirwin/agenda/internal/logging"
	"github.com/johnrirwin/agenda/internal/models"
	"github.com/johnrirwin/agenda/internal/timewindow"
)

// EventSource produces the merged event list on demand.
type EventSource interface {
	Events(ctx context.Context) []models.Event
	Sources() []models.SourceInfo
}

type EventsAPIConfig struct {
	Days      int
	SoonHours int
}

func DefaultEventsAPIConfig() EventsAPIConfig {
	return EventsAPIConfig{Days: 7, SoonHours: 5}
}

// EventsAPI serves the event views. Every request recomputes the list from
// the sources; upstream failures only shrink the result.
type EventsAPI struct {
	source   EventSource
	filter   *timewindow.Filter
	exporter *calendar.Exporter
	now      func() time.Time
	config   EventsAPIConfig
	logger   *logging.Logger
}

func NewEventsAPI(source EventSource, filter *timewindow.Filter, exporter *calendar.Exporter, now func() time.Time, config EventsAPIConfig, logger *logging.Logger) *EventsAPI {
	if now == nil {
		now = time.Now
	}
	return &EventsAPI{
		source:   source,
		filter:   filter,
		exporter: exporter,
		now:      now,
		config:   config,
		logger:   logger,
	}
}

func (api *EventsAPI) RegisterRoutes(mux *http.ServeMux, mw Middleware) {
	mux.HandleFunc("/events", mw("/events", api.handleEvents))
	mux.HandleFunc("/events/7days", mw("/events/7days", api.handleUpcomingDays))
	mux.HandleFunc("/events/now", mw("/events/now", api.handleStartingSoon))
	mux.HandleFunc("/events.ics", mw("/events.ics", api.handleCalendar))
	mux.HandleFunc("/sources", mw("/sources", api.handleSources))
}

func (api *EventsAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	events := api.source.Events(r.Context())
	writeJSON(w, http.StatusOK, encodeList(events, api.dropLogger(r)))
}

func (api *EventsAPI) handleUpcomingDays(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	events := api.source.Events(r.Context())
	buckets := api.filter.BucketByDay(events, api.config.Days, api.now())
	writeJSON(w, http.StatusOK, encodeBuckets(buckets, api.dropLogger(r)))
}

func (api *EventsAPI) handleStartingSoon(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	events := api.source.Events(r.Context())
	soon := api.filter.FilterStartingSoon(events, api.config.SoonHours, api.now())
	writeJSON(w, http.StatusOK, encodeList(soon, api.dropLogger(r)))
}

func (api *EventsAPI) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	events := api.source.Events(r.Context())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(api.exporter.Export(events)))
}

func (api *EventsAPI) handleSources(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	sources := api.source.Sources()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (api *EventsAPI) dropLogger(r *http.Request) func(int, error) {
	return func(index int, err error) {
		api.logger.Warn("Dropped event that could not be encoded", logging.WithFields(map[string]interface{}{
			"request_id": RequestID(r.Context()),
			"path":       r.URL.Path,
			"index":      index,
			"error":      err.Error(),
		}))
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return false
	}
	return true
}
