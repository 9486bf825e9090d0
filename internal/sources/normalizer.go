package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
	"github.com/johnrirwin/agenda/internal/sanitize"
)

// RawPayload is the body fetched from one source.
type RawPayload struct {
	Key       string
	Body      []byte
	FromCache bool
}

// Normalizer maps one payload into canonical events. An error means the
// payload as a whole was unusable; individual bad records are skipped.
type Normalizer interface {
	Normalize(p RawPayload) ([]models.Event, error)
}

// SkipFunc is told about every upstream record dropped during
// normalization.
type SkipFunc func(source, reason string)

// Skip reasons.
const (
	SkipNoLocation = "no_location"
	SkipInvalid    = "invalid_record"
)

// Registry dispatches payloads to the normalizer of their source format.
type Registry struct {
	normalizers map[Format]Normalizer
}

// NewRegistry returns a registry with a normalizer for every Format.
func NewRegistry(parser *dates.Parser, onSkip SkipFunc) *Registry {
	r := &Registry{normalizers: make(map[Format]Normalizer, len(formatNames))}
	r.Register(FormatRSS, NewRSSNormalizer(parser, onSkip))
	r.Register(FormatOpenAgenda, NewOpenAgendaNormalizer(parser, onSkip))
	r.Register(FormatGrandMix, NewGrandMixNormalizer(parser, onSkip))
	return r
}

func (r *Registry) Register(f Format, n Normalizer) {
	r.normalizers[f] = n
}

func (r *Registry) Lookup(f Format) (Normalizer, bool) {
	n, ok := r.normalizers[f]
	return n, ok
}

// Normalize runs the payload through the normalizer for cfg's format.
func (r *Registry) Normalize(cfg SourceConfig, p RawPayload) ([]models.Event, error) {
	n, ok := r.Lookup(cfg.Format)
	if !ok {
		return nil, fmt.Errorf("no normalizer for format %s", cfg.Format)
	}
	events, err := n.Normalize(p)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", cfg.Key, err)
	}
	return events, nil
}

// base carries what every normalizer shares.
type base struct {
	dates  *dates.Parser
	onSkip SkipFunc
}

func (b base) skip(source, reason string) {
	if b.onSkip != nil {
		b.onSkip(source, reason)
	}
}

// describe fills both description fields from raw upstream text.
func describe(e *models.Event, raw string) {
	e.LongDescription = sanitize.ClearText(raw)
	e.Description = sanitize.CropText(e.LongDescription)
}

// canonicalDate validates an ISO-like date and keeps its date component.
// A missing value stays empty. An unparseable one is replaced by today and
// reported as failed.
func (b base) canonicalDate(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	if _, err := b.dates.ParseCanonical(raw); err != nil {
		return dates.Format(b.dates.Now()), false
	}
	return dates.DateOnly(raw), true
}

// joinNonEmpty joins the non-blank parts with sep.
func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// flexFloat decodes coordinates sent either as numbers or as strings.
// Anything else, including null, is 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexFloat(parseCoordinate(s))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

func parseCoordinate(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// flexString decodes strings and numbers as text. Booleans, null and
// structured values decode to "".
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ""
	if len(data) == 0 {
		return nil
	}
	switch {
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		*s = flexString(data)
	}
	return nil
}

// timestamp renders a timing boundary.
func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
