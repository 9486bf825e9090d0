package sources

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
)

// RSSNormalizer reads event feeds published as RSS with extra per-item
// elements: date_start, date_end, location and optionally publics and rates.
type RSSNormalizer struct {
	base
}

func NewRSSNormalizer(parser *dates.Parser, onSkip SkipFunc) *RSSNormalizer {
	return &RSSNormalizer{base{dates: parser, onSkip: onSkip}}
}

type rssLocation struct {
	Name      string `xml:"name"`
	Address   string `xml:"address"`
	Latitude  string `xml:"latitude"`
	Longitude string `xml:"longitude"`
	Email     string `xml:"email"`
	URL       string `xml:"url"`
	Area      string `xml:"area"`
}

type rssPublics struct {
	Type  string `xml:"type"`
	Label string `xml:"label"`
}

type rssRates struct {
	Rates []struct {
		Label     string `xml:"label"`
		Type      string `xml:"type"`
		Amount    string `xml:"amount"`
		Condition string `xml:"condition"`
	} `xml:"rate"`
}

func (n *RSSNormalizer) Normalize(p RawPayload) ([]models.Event, error) {
	// gofeed parsers keep per-document state
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}

	events := make([]models.Event, 0, len(feed.Items))
	for _, item := range feed.Items {
		rawLocation, ok := item.Custom["location"]
		if !ok {
			n.skip(p.Key, SkipNoLocation)
			continue
		}

		var loc rssLocation
		if err := decodeFragment("location", rawLocation, &loc); err != nil {
			n.skip(p.Key, SkipInvalid)
			continue
		}

		e := models.NewEvent(p.Key)
		e.Title = strings.TrimSpace(item.Title)
		e.URL = strings.TrimSpace(item.Link)
		describe(&e, item.Description)
		if len(item.Categories) > 0 {
			e.Category = strings.TrimSpace(item.Categories[0])
		}
		if len(item.Enclosures) > 0 {
			e.Image = item.Enclosures[0].URL
		} else if item.Image != nil {
			e.Image = item.Image.URL
		}

		var startOK, endOK bool
		e.StartDate, startOK = n.canonicalDate(item.Custom["date_start"])
		e.EndDate, endOK = n.canonicalDate(item.Custom["date_end"])
		e.DateParseFailed = !startOK || !endOK

		e.Location = models.Location{
			Latitude:  parseCoordinate(loc.Latitude),
			Longitude: parseCoordinate(loc.Longitude),
			Name:      strings.TrimSpace(loc.Name),
			Address:   strings.TrimSpace(loc.Address),
			Email:     strings.TrimSpace(loc.Email),
			URL:       strings.TrimSpace(loc.URL),
			Area:      strings.TrimSpace(loc.Area),
		}

		if raw, ok := item.Custom["publics"]; ok {
			var pub rssPublics
			if decodeFragment("publics", raw, &pub) == nil {
				e.Publics = models.Publics{Type: strings.TrimSpace(pub.Type), Label: strings.TrimSpace(pub.Label)}
			}
		}
		if raw, ok := item.Custom["rates"]; ok {
			var rates rssRates
			if decodeFragment("rates", raw, &rates) == nil {
				for _, r := range rates.Rates {
					e.Rates = append(e.Rates, models.Rate{
						Label:     strings.TrimSpace(r.Label),
						Type:      strings.TrimSpace(r.Type),
						Amount:    strings.TrimSpace(r.Amount),
						Condition: strings.TrimSpace(r.Condition),
					})
				}
			}
		}

		events = append(events, e)
	}

	return events, nil
}

// decodeFragment decodes the inner XML gofeed keeps for unknown item
// elements. gofeed has already decoded entities in it, so the decoder runs
// in non-strict mode to tolerate bare ampersands.
func decodeFragment(name, inner string, v interface{}) error {
	doc := "<" + name + ">" + inner + "</" + name + ">"
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	return dec.Decode(v)
}
