package sources

import (
	"os"
	"testing"
	"time"

	"github.com/johnrirwin/agenda/internal/dates"
)

// fixedNow is the clock used by every normalizer test.
var fixedNow = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func testParser(t *testing.T) *dates.Parser {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return dates.NewParser(loc).WithClock(func() time.Time { return fixedNow })
}

type skipRecorder map[string]int

func (s skipRecorder) record(source, reason string) {
	s[source+"/"+reason]++
}

func loadPayload(t *testing.T, key, file string) RawPayload {
	t.Helper()
	body, err := os.ReadFile("testdata/" + file)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return RawPayload{Key: key, Body: body}
}

func TestRSSNormalizer_Normalize(t *testing.T) {
	skips := skipRecorder{}
	n := NewRSSNormalizer(testParser(t), skips.record)

	events, err := n.Normalize(loadPayload(t, "lille-agenda", "agenda.rss"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("Normalize() returned %d events, want 3 (item without location skipped)", len(events))
	}
	if skips["lille-agenda/"+SkipNoLocation] != 1 {
		t.Errorf("skips = %v, want one %s", skips, SkipNoLocation)
	}

	e := events[0]
	checks := []struct {
		field, got, want string
	}{
		{"Title", e.Title, "Braderie de l'Art"},
		{"URL", e.URL, "https://www.lille.fr/agenda/braderie-de-l-art"},
		{"Category", e.Category, "Exposition"},
		{"Image", e.Image, "https://www.lille.fr/media/braderie.jpg"},
		{"Description", e.Description, "Le rendez-vous des créateurs lillois. Entrée libre."},
		{"LongDescription", e.LongDescription, "Le rendez-vous des créateurs lillois. Entrée libre."},
		{"StartDate", e.StartDate, "2024-03-10"},
		{"EndDate", e.EndDate, "2024-03-10"},
		{"Location.Name", e.Location.Name, "Gare Saint Sauveur"},
		{"Location.Address", e.Location.Address, "17 boulevard Jean-Baptiste Lebas, 59000 Lille"},
		{"Location.Email", e.Location.Email, "contact@gare-saint-sauveur.fr"},
		{"Location.URL", e.Location.URL, "https://www.garesaintsauveur.fr"},
		{"Location.Area", e.Location.Area, "Lille-Moulins"},
		{"Publics.Type", e.Publics.Type, "family"},
		{"Publics.Label", e.Publics.Label, "Tout public"},
		{"Source", e.Source, "lille-agenda"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if e.Location.Latitude != 50.6293 || e.Location.Longitude != 3.0718 {
		t.Errorf("coordinates = %v,%v, want 50.6293,3.0718", e.Location.Latitude, e.Location.Longitude)
	}
	if e.Timings == nil || len(e.Timings) != 0 {
		t.Errorf("RSS timings = %v, want empty non-nil list", e.Timings)
	}
	if len(e.Rates) != 2 || e.Rates[1].Label != "Réduit" || e.Rates[1].Amount != "3" || e.Rates[1].Condition != "étudiants" {
		t.Errorf("Rates = %+v", e.Rates)
	}
	if e.DateParseFailed {
		t.Error("DateParseFailed should be false for valid dates")
	}
}

func TestRSSNormalizer_MissingOptionalFields(t *testing.T) {
	n := NewRSSNormalizer(testParser(t), nil)

	events, err := n.Normalize(loadPayload(t, "lille-agenda", "agenda.rss"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	e := events[1]
	if e.Title != "Atelier Rock & Roll" {
		t.Errorf("Title = %q", e.Title)
	}
	if e.URL != "" || e.Image != "" || e.Category != "" || e.EndDate != "" {
		t.Errorf("missing fields should be empty, got url=%q image=%q category=%q end=%q", e.URL, e.Image, e.Category, e.EndDate)
	}
	if e.StartDate != "2024-03-12" {
		t.Errorf("StartDate = %q, want 2024-03-12", e.StartDate)
	}
	if e.Location.Latitude != 0 || e.Location.Longitude != 0 {
		t.Errorf("missing coordinates should default to 0, got %v,%v", e.Location.Latitude, e.Location.Longitude)
	}
	if e.Rates == nil {
		t.Error("Rates should be an empty list, not nil")
	}
	if e.DateParseFailed {
		t.Error("a missing end date is not a parse failure")
	}
}

func TestRSSNormalizer_UnparseableDate(t *testing.T) {
	n := NewRSSNormalizer(testParser(t), func(string, string) {})

	events, err := n.Normalize(loadPayload(t, "lille-agenda", "agenda.rss"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	e := events[2]
	if !e.DateParseFailed {
		t.Error("DateParseFailed should be set")
	}
	if e.StartDate != "2024-03-01" {
		t.Errorf("StartDate = %q, want today's date 2024-03-01", e.StartDate)
	}
	if e.EndDate != "2024-03-20" {
		t.Errorf("EndDate = %q, want 2024-03-20", e.EndDate)
	}
	if e.Location.Latitude != 50.6355 || e.Location.Longitude != 3.0694 {
		t.Errorf("decimal-comma coordinates = %v,%v", e.Location.Latitude, e.Location.Longitude)
	}
}

func TestRSSNormalizer_DateScenario(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>Concert</title><date_start>2024-03-10T18:00:00</date_start><date_end>2024-03-10T22:00:00</date_end>
<location><name>Aéronef</name><latitude>50.63</latitude><longitude>3.07</longitude></location></item>
</channel></rss>`
	n := NewRSSNormalizer(testParser(t), func(string, string) {})

	events, err := n.Normalize(RawPayload{Key: "rss", Body: []byte(body)})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Normalize() returned %d events, want 1", len(events))
	}
	if events[0].StartDate != "2024-03-10" || events[0].EndDate != "2024-03-10" {
		t.Errorf("dates = %s..%s, want 2024-03-10..2024-03-10", events[0].StartDate, events[0].EndDate)
	}
	if len(events[0].Timings) != 0 {
		t.Errorf("Timings = %v, want []", events[0].Timings)
	}
}

func TestRSSNormalizer_InvalidPayload(t *testing.T) {
	n := NewRSSNormalizer(testParser(t), func(string, string) {})

	for _, body := range []string{"", "not xml at all", "<html><body>nope</body></html>"} {
		if _, err := n.Normalize(RawPayload{Key: "rss", Body: []byte(body)}); err == nil {
			t.Errorf("Normalize(%q) expected error", body)
		}
	}
}

func TestDecodeFragment(t *testing.T) {
	var loc rssLocation
	err := decodeFragment("location", "<name>Rock & Roll Café</name><latitude>50.1</latitude>", &loc)
	if err != nil {
		t.Fatalf("decodeFragment() error = %v", err)
	}
	if loc.Name != "Rock & Roll Café" || loc.Latitude != "50.1" {
		t.Errorf("decodeFragment() = %+v", loc)
	}
}

func TestDecodeFragment_KeepsHTMLVoidElementNames(t *testing.T) {
	var loc rssLocation
	err := decodeFragment("location", "<name>Salle</name><area>Lille-Moulins</area><url>https://example.com/salle</url>", &loc)
	if err != nil {
		t.Fatalf("decodeFragment() error = %v", err)
	}
	if loc.Area != "Lille-Moulins" {
		t.Errorf("Area = %q, want %q", loc.Area, "Lille-Moulins")
	}
	if loc.URL != "https://example.com/salle" {
		t.Errorf("URL = %q, want %q", loc.URL, "https://example.com/salle")
	}
}
