package dates

import (
	"testing"
	"time"
)

func parisParser(t *testing.T, now time.Time) *Parser {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return NewParser(loc).WithClock(func() time.Time { return now })
}

func TestParseCanonical(t *testing.T) {
	p := parisParser(t, time.Now())

	tests := []struct {
		raw  string
		want string
	}{
		{"2024-03-10T18:00:00+01:00", "2024-03-10T18:00:00+01:00"},
		{"2024-03-10T18:00:00+0100", "2024-03-10T18:00:00+01:00"},
		{"2024-03-10T17:00:00Z", "2024-03-10T17:00:00Z"},
		{"2024-03-10T18:00:00", "2024-03-10T18:00:00+01:00"},
		{"2024-03-10 18:00:00", "2024-03-10T18:00:00+01:00"},
		{"2024-07-14 22:30", "2024-07-14T22:30:00+02:00"},
		{"2024-03-10", "2024-03-10T00:00:00+01:00"},
		{"  2024-03-10  ", "2024-03-10T00:00:00+01:00"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := p.ParseCanonical(tt.raw)
			if err != nil {
				t.Fatalf("ParseCanonical(%q) error = %v", tt.raw, err)
			}
			if got.Format(time.RFC3339) != tt.want {
				t.Errorf("ParseCanonical(%q) = %s, want %s", tt.raw, got.Format(time.RFC3339), tt.want)
			}
		})
	}
}

func TestParseCanonical_Invalid(t *testing.T) {
	p := parisParser(t, time.Now())

	for _, raw := range []string{"", "   ", "demain", "2024-13-01", "10/03/2024"} {
		if _, err := p.ParseCanonical(raw); err == nil {
			t.Errorf("ParseCanonical(%q) expected error", raw)
		}
	}
}

func TestParseDate(t *testing.T) {
	p := parisParser(t, time.Now())

	got, err := p.ParseDate("2024-03-10T18:00:00+0100")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if got.Hour() != 0 || Format(got) != "2024-03-10" {
		t.Errorf("ParseDate() = %v, want local midnight of 2024-03-10", got)
	}
}

func TestDateOnly(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2024-03-10T18:00:00+0100", "2024-03-10"},
		{"2024-03-10 18:00:00", "2024-03-10"},
		{"2024-03-10", "2024-03-10"},
		{" 2024-03-10 ", "2024-03-10"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := DateOnly(tt.raw); got != tt.want {
			t.Errorf("DateOnly(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseLocalized(t *testing.T) {
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	p := parisParser(t, now)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"short form", "sam. 12 mars 20h30", "2024-03-12 20:30"},
		{"hour only", "ven 3 mai 20h", "2024-05-03 20:00"},
		{"colon clock", "dimanche 7 avril 18:45", "2024-04-07 18:45"},
		{"accented month", "jeu. 1 févr. 19h", "2024-02-01 19:00"},
		{"unaccented month", "jeu. 1 fevr. 19h", "2024-02-01 19:00"},
		{"full form", "vendredi 3 janvier 2025 - 19h00", "2025-01-03 19:00"},
		{"full month name", "Samedi 14 Décembre 2024 21h", "2024-12-14 21:00"},
		{"no clock", "mer 5 juin", "2024-06-05 00:00"},
		{"numeric month", "12/03/2024 20h30", "2024-03-12 20:30"},
		{"mardi not mars", "mar. 5 nov. 20h", "2024-11-05 20:00"},
		{"canonical passthrough", "2024-08-15T21:00:00", "2024-08-15 21:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.ParseLocalized(tt.raw)
			if !ok {
				t.Fatalf("ParseLocalized(%q) failed", tt.raw)
			}
			if got.Format("2006-01-02 15:04") != tt.want {
				t.Errorf("ParseLocalized(%q) = %s, want %s", tt.raw, got.Format("2006-01-02 15:04"), tt.want)
			}
			if got.Location() != p.Location() {
				t.Errorf("ParseLocalized(%q) location = %v, want %v", tt.raw, got.Location(), p.Location())
			}
		})
	}
}

func TestParseLocalized_FallsBackToNow(t *testing.T) {
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	p := parisParser(t, now)

	for _, raw := range []string{"", "bientôt", "sam. 32 mars 20h", "31 février", "12 brumaire 20h", "prochainement 12 mars"} {
		t.Run(raw, func(t *testing.T) {
			got, ok := p.ParseLocalized(raw)
			if ok {
				t.Fatalf("ParseLocalized(%q) should fail, got %v", raw, got)
			}
			if !got.Equal(now) {
				t.Errorf("ParseLocalized(%q) = %v, want fallback %v", raw, got, now)
			}
		})
	}
}

func TestParseLocalized_LeapDay(t *testing.T) {
	leap := parisParser(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	if _, ok := leap.ParseLocalized("jeu. 29 févr. 20h"); !ok {
		t.Error("29 February should parse in a leap year")
	}

	plain := parisParser(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	if _, ok := plain.ParseLocalized("sam. 29 févr. 20h"); ok {
		t.Error("29 February should not parse in a non-leap year")
	}
}
