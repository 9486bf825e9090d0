package models

import (
	"encoding/json"
	"math"
	"time"
)

// Event is the canonical record every source is normalized into.
type Event struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	LongDescription string   `json:"longDescription"`
	URL             string   `json:"url"`
	Image           string   `json:"image"`
	Category        string   `json:"category"`
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
	Location        Location `json:"location"`
	Publics         Publics  `json:"publics"`
	Rates           []Rate   `json:"rates"`
	Timings         []Timing `json:"timings"`
	Source          string   `json:"source"`
	DateParseFailed bool     `json:"dateParseFailed,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Email     string  `json:"email"`
	URL       string  `json:"url"`
	Area      string  `json:"area"`
}

// MarshalJSON leaves out coordinates that JSON cannot represent (NaN, ±Inf)
// instead of failing the whole document.
func (l Location) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"name":    l.Name,
		"address": l.Address,
		"email":   l.Email,
		"url":     l.URL,
		"area":    l.Area,
	}
	if isFinite(l.Latitude) {
		out["latitude"] = l.Latitude
	}
	if isFinite(l.Longitude) {
		out["longitude"] = l.Longitude
	}
	return json.Marshal(out)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type Publics struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type Rate struct {
	Label     string `json:"label"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Condition string `json:"condition"`
}

// Timing is one occurrence of an event. Start and End are kept as the
// upstream timestamp strings.
type Timing struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayBucket groups the events happening on one calendar day.
type DayBucket struct {
	Date      time.Time `json:"date"`
	DayNumber int       `json:"dayNumber"`
	DayName   string    `json:"dayName"`
	Events    []Event   `json:"events"`
}

// SourceInfo describes a configured upstream for the /sources listing.
type SourceInfo struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Format   string `json:"format"`
	Enabled  bool   `json:"enabled"`
}

// NewEvent returns an Event whose list fields are empty rather than nil.
func NewEvent(source string) Event {
	return Event{
		Source:  source,
		Rates:   []Rate{},
		Timings: []Timing{},
	}
}
