package sources

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
)

// GrandMixCategory is the only kind of event the venue feed lists.
const GrandMixCategory = "Concert"

// The feed publishes thumbnail URLs through a resolver path that answers
// 404; the direct cache path serves the same file.
const (
	grandMixBrokenImagePath = "/media/cache/resolve/event_thumbnail/"
	grandMixImagePath       = "/media/cache/event_thumbnail/"
)

// GrandMixNormalizer reads the venue's own JSON feed, whose dates are French
// free text such as "sam. 12 mars 20h30".
type GrandMixNormalizer struct {
	base
}

func NewGrandMixNormalizer(parser *dates.Parser, onSkip SkipFunc) *GrandMixNormalizer {
	return &GrandMixNormalizer{base{dates: parser, onSkip: onSkip}}
}

type grandMixPayload struct {
	Events []json.RawMessage `json:"events"`
}

type grandMixEvent struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	URL          string          `json:"url"`
	Image        string          `json:"image"`
	DateStart    string          `json:"date_start"`
	DateEnd      string          `json:"date_end"`
	Geolocations *grandMixPlace  `json:"geolocations"`
	Publics      *grandMixPublic `json:"publics"`
	Prices       []grandMixPrice `json:"prices"`
}

type grandMixPlace struct {
	Lat     flexFloat  `json:"lat"`
	Lng     flexFloat  `json:"lng"`
	Label   flexString `json:"label"`
	Address string     `json:"address"`
	Email   string     `json:"email"`
	URL     string     `json:"url"`
	Area    string     `json:"area"`
}

type grandMixPublic struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type grandMixPrice struct {
	Label     string     `json:"label"`
	Amount    flexString `json:"amount"`
	Condition string     `json:"condition"`
}

func (n *GrandMixNormalizer) Normalize(p RawPayload) ([]models.Event, error) {
	var payload grandMixPayload
	if err := json.Unmarshal(p.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode Grand Mix payload: %w", err)
	}

	events := make([]models.Event, 0, len(payload.Events))
	for _, raw := range payload.Events {
		var src grandMixEvent
		if err := json.Unmarshal(raw, &src); err != nil {
			n.skip(p.Key, SkipInvalid)
			continue
		}
		if src.Geolocations == nil {
			n.skip(p.Key, SkipNoLocation)
			continue
		}

		e := models.NewEvent(p.Key)
		e.Title = strings.TrimSpace(src.Title)
		e.URL = src.URL
		e.Category = GrandMixCategory
		e.Image = strings.Replace(src.Image, grandMixBrokenImagePath, grandMixImagePath, 1)
		describe(&e, src.Description)

		start, startOK := n.dates.ParseLocalized(src.DateStart)
		end, endOK := start, true
		if strings.TrimSpace(src.DateEnd) != "" {
			end, endOK = n.dates.ParseLocalized(src.DateEnd)
		}
		if end.Before(start) {
			end = start
		}
		e.StartDate = dates.Format(start)
		e.EndDate = dates.Format(end)
		e.DateParseFailed = !startOK || !endOK
		e.Timings = append(e.Timings, models.Timing{Start: timestamp(start), End: timestamp(end)})

		geo := src.Geolocations
		e.Location = models.Location{
			Latitude:  float64(geo.Lat),
			Longitude: float64(geo.Lng),
			Name:      strings.TrimSpace(string(geo.Label)),
			Address:   strings.TrimSpace(geo.Address),
			Email:     strings.TrimSpace(geo.Email),
			URL:       strings.TrimSpace(geo.URL),
			Area:      strings.TrimSpace(geo.Area),
		}

		if src.Publics != nil {
			e.Publics = models.Publics{Type: src.Publics.Type, Label: src.Publics.Label}
		}
		for _, price := range src.Prices {
			e.Rates = append(e.Rates, models.Rate{
				Label:     price.Label,
				Type:      "price",
				Amount:    string(price.Amount),
				Condition: price.Condition,
			})
		}

		events = append(events, e)
	}

	return events, nil
}
