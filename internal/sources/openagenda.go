package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
	"github.com/johnrirwin/agenda/internal/sanitize"
)

// OpenAgendaNormalizer reads the JSON export of an OpenAgenda agenda.
type OpenAgendaNormalizer struct {
	base
}

func NewOpenAgendaNormalizer(parser *dates.Parser, onSkip SkipFunc) *OpenAgendaNormalizer {
	return &OpenAgendaNormalizer{base{dates: parser, onSkip: onSkip}}
}

// localized holds a per-language text. Some agendas send a plain string
// instead of an object.
type localized map[string]string

func (l *localized) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = localized{"fr": s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		*l = nil
		return nil
	}
	*l = m
	return nil
}

func (l localized) fr() string {
	return l["fr"]
}

type openAgendaPayload struct {
	Events []json.RawMessage `json:"events"`
}

type openAgendaEvent struct {
	Title           localized           `json:"title"`
	Description     localized           `json:"description"`
	LongDescription localized           `json:"longDescription"`
	Conditions      localized           `json:"conditions"`
	Keywords        map[string][]string `json:"keywords"`
	Image           string              `json:"image"`
	CanonicalURL    string              `json:"canonicalUrl"`
	Link            string              `json:"link"`
	FirstDate       string              `json:"firstDate"`
	LastDate        string              `json:"lastDate"`
	Timings         []openAgendaTiming  `json:"timings"`
	Location        *openAgendaLocation `json:"location"`
	Publics         *openAgendaPublics  `json:"publics"`
	Rates           []openAgendaRate    `json:"rates"`
}

type openAgendaTiming struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type openAgendaLocation struct {
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	PostalCode flexString `json:"postalCode"`
	City       string     `json:"city"`
	District   string     `json:"district"`
	Latitude   flexFloat  `json:"latitude"`
	Longitude  flexFloat  `json:"longitude"`
	Email      string     `json:"email"`
	Website    string     `json:"website"`
}

type openAgendaPublics struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type openAgendaRate struct {
	Label     string     `json:"label"`
	Type      string     `json:"type"`
	Amount    flexString `json:"amount"`
	Condition string     `json:"condition"`
}

func (n *OpenAgendaNormalizer) Normalize(p RawPayload) ([]models.Event, error) {
	var payload openAgendaPayload
	if err := json.Unmarshal(p.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode OpenAgenda payload: %w", err)
	}

	events := make([]models.Event, 0, len(payload.Events))
	for _, raw := range payload.Events {
		var src openAgendaEvent
		if err := json.Unmarshal(raw, &src); err != nil {
			n.skip(p.Key, SkipInvalid)
			continue
		}
		if src.Location == nil {
			n.skip(p.Key, SkipNoLocation)
			continue
		}

		e := models.NewEvent(p.Key)
		e.Title = strings.TrimSpace(src.Title.fr())
		e.Image = src.Image
		e.URL = src.CanonicalURL
		if e.URL == "" {
			e.URL = src.Link
		}
		if kw := src.Keywords["fr"]; len(kw) > 0 {
			e.Category = strings.TrimSpace(kw[0])
		}

		describe(&e, src.Description.fr())
		if long := sanitize.ClearText(src.LongDescription.fr()); long != "" {
			e.LongDescription = long
		}

		e.StartDate = dates.DateOnly(src.FirstDate)
		e.EndDate = dates.DateOnly(src.LastDate)
		for _, d := range []string{e.StartDate, e.EndDate} {
			if _, err := n.dates.ParseDate(d); d != "" && err != nil {
				e.DateParseFailed = true
			}
		}

		loc := src.Location
		e.Location = models.Location{
			Latitude:  float64(loc.Latitude),
			Longitude: float64(loc.Longitude),
			Name:      strings.TrimSpace(loc.Name),
			Address:   joinNonEmpty(", ", loc.Address, joinNonEmpty(" ", string(loc.PostalCode), loc.City)),
			Email:     strings.TrimSpace(loc.Email),
			URL:       strings.TrimSpace(loc.Website),
			Area:      firstNonEmpty(loc.District, loc.City),
		}

		if src.Publics != nil {
			e.Publics = models.Publics{Type: src.Publics.Type, Label: src.Publics.Label}
		}
		for _, r := range src.Rates {
			e.Rates = append(e.Rates, models.Rate{
				Label:     r.Label,
				Type:      r.Type,
				Amount:    string(r.Amount),
				Condition: r.Condition,
			})
		}
		if len(e.Rates) == 0 {
			if cond := sanitize.ClearText(src.Conditions.fr()); cond != "" {
				e.Rates = append(e.Rates, models.Rate{Type: "conditions", Condition: cond})
			}
		}

		for _, t := range src.Timings {
			e.Timings = append(e.Timings, models.Timing{Start: t.Start, End: t.End})
		}

		events = append(events, e)
	}

	return events, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
