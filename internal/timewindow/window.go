// Package timewindow derives the day-by-day and starting-soon views from a
// merged event list.
package timewindow

import (
	"strings"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
)

// DefaultLocale names weekdays when none is configured.
const DefaultLocale = "fr_FR"

// Filter buckets and filters events relative to a reference time.
type Filter struct {
	parser *dates.Parser
	locale monday.Locale
	tag    language.Tag
}

// New returns a Filter naming days in locale, e.g. "fr_FR" or "en_US".
// Timing starts without an offset are read in the parser's location.
func New(parser *dates.Parser, locale string) *Filter {
	if locale == "" {
		locale = DefaultLocale
	}
	return &Filter{
		parser: parser,
		locale: monday.Locale(locale),
		tag:    language.Make(strings.ReplaceAll(locale, "_", "-")),
	}
}

// DayName is the capitalized short weekday of t, "Dim" for a Sunday in
// French.
func (f *Filter) DayName(t time.Time) string {
	name := strings.TrimSpace(monday.Format(t, "Mon", f.locale))
	return cases.Title(f.tag).String(name)
}

// BucketByDay returns dayCount consecutive days starting with ref's
// calendar day. An event lands in every day between its start and end
// dates, both inclusive; an event without a usable end spans its start day
// only, and one without a usable start is left out.
func (f *Filter) BucketByDay(events []models.Event, dayCount int, ref time.Time) []models.DayBucket {
	if dayCount < 0 {
		dayCount = 0
	}

	type span struct{ start, end time.Time }
	spans := make([]span, len(events))
	valid := make([]bool, len(events))
	for i, e := range events {
		start, ok := civil(e.StartDate)
		if !ok {
			continue
		}
		end, ok := civil(e.EndDate)
		if !ok || end.Before(start) {
			end = start
		}
		spans[i], valid[i] = span{start, end}, true
	}

	buckets := make([]models.DayBucket, 0, dayCount)
	for i := 0; i < dayCount; i++ {
		day := time.Date(ref.Year(), ref.Month(), ref.Day()+i, 0, 0, 0, 0, ref.Location())
		key := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

		bucket := models.DayBucket{
			Date:      day,
			DayNumber: int(day.Weekday()),
			DayName:   f.DayName(day),
			Events:    []models.Event{},
		}
		for j, e := range events {
			if !valid[j] {
				continue
			}
			if !key.Before(spans[j].start) && !key.After(spans[j].end) {
				bucket.Events = append(bucket.Events, e)
			}
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}

// FilterStartingSoon keeps the events with a timing that starts between ref
// and ref+hours, both bounds included.
func (f *Filter) FilterStartingSoon(events []models.Event, hours int, ref time.Time) []models.Event {
	window := time.Duration(hours) * time.Hour
	out := make([]models.Event, 0)
	for _, e := range events {
		if f.startsWithin(e, ref, window) {
			out = append(out, e)
		}
	}
	return out
}

func (f *Filter) startsWithin(e models.Event, ref time.Time, window time.Duration) bool {
	for _, timing := range e.Timings {
		start, err := f.parser.ParseCanonical(timing.Start)
		if err != nil {
			continue
		}
		if d := start.Sub(ref); d >= 0 && d <= window {
			return true
		}
	}
	return false
}

// civil reads the date part of raw as a zone-less calendar day.
func civil(raw string) (time.Time, bool) {
	t, err := time.Parse(dates.DateLayout, dates.DateOnly(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
