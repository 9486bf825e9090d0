// Package dates converts the date strings found in upstream feeds into
// time values and canonical YYYY-MM-DD dates.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical date-only representation.
const DateLayout = "2006-01-02"

// Layouts accepted for near-ISO timestamps, most specific first.
var canonicalLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	DateLayout,
}

const (
	shortLayout = "2 1 15:04"
	fullLayout  = "2 1 2006 15:04"
)

var (
	timeToken  = regexp.MustCompile(`^(\d{1,2})(?:h|:)(\d{2})?$`)
	separators = strings.NewReplacer(".", " ", ",", " ", "-", " ", "/", " ", "|", " ")
)

// frenchMonths maps accent-folded, dot-less month words to month numbers.
var frenchMonths = map[string]time.Month{
	"jan": time.January, "janv": time.January, "janvier": time.January,
	"fev": time.February, "fevr": time.February, "fevrier": time.February,
	"mar": time.March, "mars": time.March,
	"avr": time.April, "avril": time.April,
	"mai": time.May,
	"juin": time.June,
	"juil": time.July, "juillet": time.July,
	"aou": time.August, "aout": time.August,
	"sep": time.September, "sept": time.September, "septembre": time.September,
	"oct": time.October, "octobre": time.October,
	"nov": time.November, "novembre": time.November,
	"dec": time.December, "decembre": time.December,
}

var frenchWeekdays = map[string]bool{
	"lun": true, "lundi": true,
	"mar": true, "mardi": true,
	"mer": true, "mercredi": true,
	"jeu": true, "jeudi": true,
	"ven": true, "vendredi": true,
	"sam": true, "samedi": true,
	"dim": true, "dimanche": true,
}

// Parser parses upstream dates. Timestamps without an explicit offset are
// read in the parser's location.
type Parser struct {
	loc *time.Location
	now func() time.Time
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc, now: time.Now}
}

// WithClock returns a copy of the parser using now as its clock.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	cp := *p
	cp.now = now
	return &cp
}

func (p *Parser) Location() *time.Location {
	return p.loc
}

// Now returns the parser's current time in its location.
func (p *Parser) Now() time.Time {
	return p.now().In(p.loc)
}

// ParseCanonical parses an ISO-8601-like timestamp or date.
func (p *Parser) ParseCanonical(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range canonicalLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", raw)
}

// ParseDate parses the date component of a canonical timestamp as local
// midnight.
func (p *Parser) ParseDate(raw string) (time.Time, error) {
	s := DateOnly(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := time.ParseInLocation(DateLayout, s, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported date %q: %w", raw, err)
	}
	return t, nil
}

// ParseLocalized parses French free-text dates such as "sam. 12 mars 20h30"
// or "vendredi 3 févr. 2025 19:00". When nothing usable is found it returns
// the current time and false.
func (p *Parser) ParseLocalized(raw string) (time.Time, bool) {
	if t, err := p.ParseCanonical(raw); err == nil {
		return t, true
	}

	day, month, year, clock, ok := splitLocalized(raw)
	if !ok {
		return p.Now(), false
	}

	var (
		t   time.Time
		err error
	)
	if year == "" {
		t, err = time.ParseInLocation(shortLayout, strings.Join([]string{day, month, clock}, " "), p.loc)
		if err == nil {
			t = time.Date(p.Now().Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, p.loc)
			// Feb 29 in a non-leap year normalizes into March
			if t.Day() != mustAtoi(day) {
				err = fmt.Errorf("day out of range")
			}
		}
	} else {
		t, err = time.ParseInLocation(fullLayout, strings.Join([]string{day, month, year, clock}, " "), p.loc)
	}
	if err != nil {
		return p.Now(), false
	}
	return t, true
}

// splitLocalized extracts day, numeric month, optional year and HH:MM from
// a French date. Weekday words and filler before the day number are dropped.
func splitLocalized(raw string) (day, month, year, clock string, ok bool) {
	tokens := strings.Fields(separators.Replace(fold(raw)))

	i := 0
	for ; i < len(tokens); i++ {
		if isDigits(tokens[i]) {
			break
		}
		if !frenchWeekdays[tokens[i]] && !isFiller(tokens[i]) {
			return "", "", "", "", false
		}
	}
	if i+1 >= len(tokens) || len(tokens[i]) > 2 {
		return "", "", "", "", false
	}

	day = tokens[i]
	if m, known := frenchMonths[tokens[i+1]]; known {
		month = strconv.Itoa(int(m))
	} else if isDigits(tokens[i+1]) && len(tokens[i+1]) <= 2 {
		month = strconv.Itoa(mustAtoi(tokens[i+1]))
	} else {
		return "", "", "", "", false
	}

	clock = "00:00"
	for _, tok := range tokens[i+2:] {
		switch {
		case len(tok) == 4 && isDigits(tok) && year == "":
			year = tok
		case timeToken.MatchString(tok):
			parts := timeToken.FindStringSubmatch(tok)
			minutes := parts[2]
			if minutes == "" {
				minutes = "00"
			}
			clock = fmt.Sprintf("%02d:%s", mustAtoi(parts[1]), minutes)
		}
	}
	return day, month, year, clock, true
}

// DateOnly keeps the date component of a timestamp string.
func DateOnly(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	return s
}

// Format renders t as a canonical date.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func isFiller(tok string) bool {
	switch tok {
	case "le", "du", "au", "a", "de", "l", "the":
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
