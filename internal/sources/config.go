package sources

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/johnrirwin/agenda/internal/models"
)

// Format identifies the payload shape of a source and therefore which
// normalizer handles it.
type Format int

const (
	FormatUnknown Format = iota
	FormatRSS
	FormatOpenAgenda
	FormatGrandMix
)

var formatNames = map[Format]string{
	FormatRSS:        "rss",
	FormatOpenAgenda: "openagenda",
	FormatGrandMix:   "grandmix",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ParseFormat maps a config name to its Format.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown source format %q", s)
}

func (f *Format) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Format) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// SourceConfig is one upstream feed.
type SourceConfig struct {
	Key      string            `yaml:"key"`
	Name     string            `yaml:"name"`
	Endpoint string            `yaml:"endpoint"`
	Format   Format            `yaml:"format"`
	Enabled  bool              `yaml:"enabled"`
	Headers  map[string]string `yaml:"headers"`
	Query    map[string]string `yaml:"query"`
}

// URL returns the endpoint with the fixed query parameters applied.
func (c SourceConfig) URL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint for %s: %w", c.Key, err)
	}
	if len(c.Query) > 0 {
		q := u.Query()
		for k, v := range c.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Host is the rate-limiting key for the source.
func (c SourceConfig) Host() string {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return c.Endpoint
	}
	return u.Host
}

func (c SourceConfig) Info() models.SourceInfo {
	name := c.Name
	if name == "" {
		name = c.Key
	}
	return models.SourceInfo{
		Key:      c.Key,
		Name:     name,
		Endpoint: c.Endpoint,
		Format:   c.Format.String(),
		Enabled:  c.Enabled,
	}
}

// SourcesConfig is the process-wide source table. It is read-only once
// loaded.
type SourcesConfig struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSourcesConfig reads and validates a YAML source table.
func LoadSourcesConfig(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources config: %w", err)
	}
	return ParseSourcesConfig(data)
}

func ParseSourcesConfig(data []byte) (*SourcesConfig, error) {
	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sources config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that keys are unique and every entry has an endpoint and
// a known format.
func (c *SourcesConfig) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("sources config has no sources")
	}

	seen := make(map[string]bool, len(c.Sources))
	var errs []error
	for i, s := range c.Sources {
		switch {
		case s.Key == "":
			errs = append(errs, fmt.Errorf("source #%d: missing key", i))
		case seen[s.Key]:
			errs = append(errs, fmt.Errorf("source %q: duplicate key", s.Key))
		}
		seen[s.Key] = true

		if !s.Format.Valid() {
			errs = append(errs, fmt.Errorf("source %q: missing or unknown format", s.Key))
		}
		if s.Endpoint == "" {
			errs = append(errs, fmt.Errorf("source %q: missing endpoint", s.Key))
		} else if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("source %q: invalid endpoint %q", s.Key, s.Endpoint))
		}
	}
	return errors.Join(errs...)
}

func (c *SourcesConfig) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// FindSourcesConfig returns the first existing sources file, checking the
// explicit path first, then SOURCES_CONFIG_PATH, then the usual locations.
func FindSourcesConfig(explicit string) string {
	locations := []string{
		"sources.yaml",
		"config/sources.yaml",
		"../sources.yaml",
		"/app/sources.yaml",
		"/etc/agenda/sources.yaml",
	}
	if envPath := os.Getenv("SOURCES_CONFIG_PATH"); envPath != "" {
		locations = append([]string{envPath}, locations...)
	}
	if explicit != "" {
		locations = append([]string{explicit}, locations...)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// DefaultSourcesConfig is used when no sources file is found.
func DefaultSourcesConfig() *SourcesConfig {
	jsonHeaders := map[string]string{"Accept": "application/json"}
	paging := map[string]string{"offset": "0", "limit": "100"}

	return &SourcesConfig{
		Sources: []SourceConfig{
			{
				Key:      "lille-agenda",
				Name:     "Agenda de Lille",
				Endpoint: "https://www.lille.fr/rss/agenda.xml",
				Format:   FormatRSS,
				Enabled:  true,
				Headers:  map[string]string{"Accept": "application/rss+xml, application/xml"},
			},
			{
				Key:      "openagenda-metropole",
				Name:     "OpenAgenda Métropole",
				Endpoint: "https://openagenda.com/agendas/lille-metropole/events.json",
				Format:   FormatOpenAgenda,
				Enabled:  true,
				Headers:  jsonHeaders,
				Query:    paging,
			},
			{
				Key:      "openagenda-culture",
				Name:     "OpenAgenda Culture",
				Endpoint: "https://openagenda.com/agendas/lille-culture/events.json",
				Format:   FormatOpenAgenda,
				Enabled:  true,
				Headers:  jsonHeaders,
				Query:    paging,
			},
			{
				Key:      "grandmix",
				Name:     "Le Grand Mix",
				Endpoint: "https://www.legrandmix.com/api/events",
				Format:   FormatGrandMix,
				Enabled:  true,
				Headers:  jsonHeaders,
			},
		},
	}
}
