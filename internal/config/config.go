package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Fetch   FetchConfig
	Cache   CacheConfig
	Logging LoggingConfig
	Locale  LocaleConfig
	Views   ViewsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	MCPMode         bool
	ShutdownTimeout time.Duration
}

// FetchConfig controls how upstream sources are retrieved
type FetchConfig struct {
	SourcesPath string
	Timeout     time.Duration
	RateLimit   time.Duration
	UserAgent   string
}

// CacheConfig holds the optional payload cache configuration
type CacheConfig struct {
	Backend       string // "none", "memory" or "redis"
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	WarmSchedule  string
}

// Enabled reports whether upstream payloads are cached at all.
func (c CacheConfig) Enabled() bool {
	return c.Backend == "memory" || c.Backend == "redis"
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// LocaleConfig sets how dates are read and day names are written
type LocaleConfig struct {
	Timezone string
	Locale   string
}

// ViewsConfig sizes the derived event views
type ViewsConfig struct {
	Days         int
	SoonHours    int
	CalendarName string
}

// Load parses flags and environment variables to build configuration
func Load() *Config {
	httpAddr := flag.String("http", ":8080", "HTTP server address")
	mcpMode := flag.Bool("mcp", false, "Run in MCP stdio mode")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	sourcesPath := flag.String("sources", "", "Path to the sources YAML file")
	fetchTimeout := flag.Duration("fetch-timeout", 10*time.Second, "Timeout for each upstream request")
	rateLimit := flag.Duration("rate-limit", 0, "Minimum delay between requests to same host")
	userAgent := flag.String("user-agent", "AgendaProxy/1.0", "User-Agent sent upstream")
	cacheBackend := flag.String("cache-backend", "none", "Payload cache backend: none, memory or redis")
	cacheTTL := flag.Duration("cache-ttl", 5*time.Minute, "Cache TTL for upstream payloads")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis server address")
	warmSchedule := flag.String("warm-schedule", "@every 4m", "Cron schedule for cache warm-up")
	timezone := flag.String("timezone", "Europe/Paris", "Timezone for timestamps without an offset")
	locale := flag.String("locale", "fr_FR", "Locale for day names")
	days := flag.Int("days", 7, "Number of days in the upcoming view")
	soonHours := flag.Int("soon-hours", 5, "Window of the starting-soon view in hours")

	flag.Parse()

	// Apply environment variable overrides
	overrideString(httpAddr, "HTTP_ADDR")
	if v := os.Getenv("MCP_MODE"); v == "true" || v == "1" {
		*mcpMode = true
	}
	overrideString(logLevel, "LOG_LEVEL")
	overrideString(sourcesPath, "SOURCES_CONFIG_PATH")
	overrideDuration(fetchTimeout, "FETCH_TIMEOUT")
	overrideDuration(rateLimit, "RATE_LIMIT")
	overrideString(userAgent, "USER_AGENT")
	overrideString(cacheBackend, "CACHE_BACKEND")
	overrideDuration(cacheTTL, "CACHE_TTL")
	overrideString(redisAddr, "REDIS_ADDR")
	overrideString(warmSchedule, "WARM_SCHEDULE")
	overrideString(timezone, "TZ")
	overrideString(locale, "LOCALE")
	overrideInt(days, "UPCOMING_DAYS")
	overrideInt(soonHours, "SOON_HOURS")

	redisDB := 0
	overrideInt(&redisDB, "REDIS_DB")

	return &Config{
		Server: ServerConfig{
			HTTPAddr:        *httpAddr,
			MCPMode:         *mcpMode,
			ShutdownTimeout: 10 * time.Second,
		},
		Fetch: FetchConfig{
			SourcesPath: *sourcesPath,
			Timeout:     *fetchTimeout,
			RateLimit:   *rateLimit,
			UserAgent:   *userAgent,
		},
		Cache: CacheConfig{
			Backend:       *cacheBackend,
			TTL:           *cacheTTL,
			RedisAddr:     *redisAddr,
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
			WarmSchedule:  *warmSchedule,
		},
		Logging: LoggingConfig{
			Level: *logLevel,
		},
		Locale: LocaleConfig{
			Timezone: *timezone,
			Locale:   *locale,
		},
		Views: ViewsConfig{
			Days:         *days,
			SoonHours:    *soonHours,
			CalendarName: getEnvOrDefault("CALENDAR_NAME", "Agenda"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func overrideString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideDuration(target *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			*target = d
		}
	}
}

func overrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*target = n
		}
	}
}
