// Package calendar renders events as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
)

const productID = "-//agenda//events//FR"

// Exporter turns event lists into VCALENDAR documents.
type Exporter struct {
	parser *dates.Parser
	name   string
}

func NewExporter(parser *dates.Parser, name string) *Exporter {
	return &Exporter{parser: parser, name: name}
}

// Export writes one VEVENT per event. Events with a parseable timing get
// that exact interval; the rest become all-day events over their date
// range. Events without a usable start date are skipped.
func (x *Exporter) Export(events []models.Event) string {
	cal := ical.NewCalendarFor(x.name)
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if x.name != "" {
		cal.SetXWRCalName(x.name)
	}
	cal.SetXWRTimezone(x.parser.Location().String())

	stamp := x.parser.Now().UTC()
	for _, e := range events {
		x.addEvent(cal, e, stamp)
	}
	return cal.Serialize()
}

func (x *Exporter) addEvent(cal *ical.Calendar, e models.Event, stamp time.Time) {
	start, end, timed, ok := x.interval(e)
	if !ok {
		return
	}

	vevent := cal.AddEvent(UID(e))
	vevent.SetDtStampTime(stamp)
	if timed {
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
	} else {
		vevent.SetAllDayStartAt(start)
		// DTEND is exclusive for all-day events
		vevent.SetAllDayEndAt(end.AddDate(0, 0, 1))
	}

	vevent.SetSummary(e.Title)
	if e.LongDescription != "" {
		vevent.SetDescription(e.LongDescription)
	}
	if e.URL != "" {
		vevent.SetURL(e.URL)
	}
	if place := placeOf(e.Location); place != "" {
		vevent.SetLocation(place)
	}
	if e.Location.Latitude != 0 || e.Location.Longitude != 0 {
		vevent.SetProperty(ical.ComponentPropertyGeo, fmt.Sprintf("%f;%f", e.Location.Latitude, e.Location.Longitude))
	}
	if e.Category != "" {
		vevent.SetProperty(ical.ComponentPropertyCategories, e.Category)
	}
}

// interval picks the first timing that parses, then falls back to the
// event's dates.
func (x *Exporter) interval(e models.Event) (start, end time.Time, timed, ok bool) {
	for _, t := range e.Timings {
		s, err := x.parser.ParseCanonical(t.Start)
		if err != nil {
			continue
		}
		en, err := x.parser.ParseCanonical(t.End)
		if err != nil || en.Before(s) {
			en = s
		}
		return s, en, true, true
	}

	s, err := x.parser.ParseDate(e.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, false
	}
	en, err := x.parser.ParseDate(e.EndDate)
	if err != nil || en.Before(s) {
		en = s
	}
	return s, en, false, true
}

// UID derives a stable identifier so calendar clients update rather than
// duplicate events across refreshes.
func UID(e models.Event) string {
	name := strings.Join([]string{e.Source, e.URL, e.Title, dates.DateOnly(e.StartDate)}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String() + "@agenda"
}

func placeOf(l models.Location) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{l.Name, l.Address} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
