package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/johnrirwin/agenda/internal/aggregator"
	"github.com/johnrirwin/agenda/internal/cache"
	"github.com/johnrirwin/agenda/internal/calendar"
	"github.com/johnrirwin/agenda/internal/config"
	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/httpapi"
	"github.com/johnrirwin/agenda/internal/logging"
	"github.com/johnrirwin/agenda/internal/mcp"
	"github.com/johnrirwin/agenda/internal/metrics"
	"github.com/johnrirwin/agenda/internal/ratelimit"
	"github.com/johnrirwin/agenda/internal/sources"
	"github.com/johnrirwin/agenda/internal/timewindow"
)

// App holds all application dependencies
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Cache      cache.Cache
	Metrics    *metrics.Metrics
	Sources    *sources.SourcesConfig
	Parser     *dates.Parser
	Aggregator *aggregator.Aggregator
	HTTPServer *httpapi.Server
	MCPServer  *mcp.Server
	warmer     *cron.Cron
	closeCache func()
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	// Initialize logger
	app.Logger = app.initLogger()

	// Initialize cache
	app.Cache = app.initCache()

	app.Metrics = metrics.New()
	app.Parser = dates.NewParser(app.initLocation())
	app.Sources = app.initSources()

	// Initialize aggregator
	limiter := ratelimit.New(cfg.Fetch.RateLimit)
	retriever := sources.NewHTTPRetriever(sources.RetrieverConfig{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		CacheTTL:  cfg.Cache.TTL,
	}, limiter, app.Cache, app.Logger)
	registry := sources.NewRegistry(app.Parser, app.Metrics.Skipped)
	app.Aggregator = aggregator.New(app.Sources, retriever, registry, app.Metrics, app.Logger)

	if cfg.Cache.Enabled() {
		warmer, err := app.initWarmer()
		if err != nil {
			if app.closeCache != nil {
				app.closeCache()
			}
			return nil, err
		}
		app.warmer = warmer
	}

	// Initialize servers
	app.initServers()

	return app, nil
}

// Run starts the application in the appropriate mode
func (a *App) Run(ctx context.Context) error {
	if a.warmer != nil {
		// Pre-fetch payloads in background
		go func() {
			a.Logger.Info("Pre-fetching sources in background...")
			a.Aggregator.Warm(ctx)
			a.Logger.Info("Initial fetch complete")
		}()
		a.warmer.Start()
	}

	if a.Config.Server.MCPMode {
		return a.runMCPMode(ctx)
	}
	return a.runHTTPMode()
}

func (a *App) runMCPMode(ctx context.Context) error {
	a.Logger.Info("Starting MCP server in stdio mode")
	err := a.MCPServer.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) runHTTPMode() error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))

	err := a.HTTPServer.Start(a.Config.Server.HTTPAddr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.warmer != nil {
		select {
		case <-a.warmer.Stop().Done():
		case <-ctx.Done():
			a.Logger.Warn("Cache warm-up still running at shutdown")
		}
	}

	if a.closeCache != nil {
		a.closeCache()
	}

	_ = a.Logger.Sync()
	return nil
}

func (a *App) initLogger() *logging.Logger {
	level := logging.LevelInfo
	switch a.Config.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(level)
}

func (a *App) initCache() cache.Cache {
	switch a.Config.Cache.Backend {
	case "redis":
		a.Logger.Info("Using Redis cache backend", logging.WithField("addr", a.Config.Cache.RedisAddr))
		redisCache, err := cache.NewRedis(context.Background(), cache.RedisConfig{
			Addr:     a.Config.Cache.RedisAddr,
			Password: a.Config.Cache.RedisPassword,
			DB:       a.Config.Cache.RedisDB,
		}, a.Config.Cache.TTL)
		if err != nil {
			a.Logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			return a.memoryCache()
		}
		a.closeCache = func() {
			if err := redisCache.Close(); err != nil {
				a.Logger.Error("Redis close error", logging.WithField("error", err.Error()))
			}
		}
		return redisCache
	case "memory":
		a.Logger.Info("Using in-memory cache backend")
		return a.memoryCache()
	default:
		a.Logger.Info("Payload cache disabled, sources are fetched on every request")
		return cache.Nop{}
	}
}

func (a *App) memoryCache() cache.Cache {
	memory := cache.NewMemory(a.Config.Cache.TTL)
	a.closeCache = memory.Stop
	return memory
}

func (a *App) initLocation() *time.Location {
	loc, err := time.LoadLocation(a.Config.Locale.Timezone)
	if err != nil {
		a.Logger.Warn("Unknown timezone, using local time", logging.WithFields(map[string]interface{}{
			"timezone": a.Config.Locale.Timezone,
			"error":    err.Error(),
		}))
		return time.Local
	}
	return loc
}

func (a *App) initSources() *sources.SourcesConfig {
	// Try to load sources from config file
	configPath := sources.FindSourcesConfig(a.Config.Fetch.SourcesPath)
	if configPath != "" {
		table, err := sources.LoadSourcesConfig(configPath)
		if err != nil {
			a.Logger.Warn("Failed to load sources config, using defaults", logging.WithFields(map[string]interface{}{
				"path":  configPath,
				"error": err.Error(),
			}))
		} else {
			a.Logger.Info("Loaded sources configuration", logging.WithFields(map[string]interface{}{
				"path":    configPath,
				"sources": len(table.Sources),
				"enabled": len(table.Enabled()),
			}))
			return table
		}
	} else {
		a.Logger.Info("No sources.yaml found, using default sources")
	}

	// Fallback to default config
	return sources.DefaultSourcesConfig()
}

// initWarmer schedules cache refreshes so requests are served from warm
// payloads.
func (a *App) initWarmer() (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(a.Parser.Location()))
	_, err := c.AddFunc(a.Config.Cache.WarmSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		start := time.Now()
		a.Aggregator.Warm(ctx)
		a.Logger.Debug("Cache warm-up complete", logging.WithField("took", time.Since(start).String()))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid warm schedule %q: %w", a.Config.Cache.WarmSchedule, err)
	}
	a.Logger.Info("Scheduled cache warm-up", logging.WithField("schedule", a.Config.Cache.WarmSchedule))
	return c, nil
}

func (a *App) initServers() {
	filter := timewindow.New(a.Parser, a.Config.Locale.Locale)
	exporter := calendar.NewExporter(a.Parser, a.Config.Views.CalendarName)
	eventsAPI := httpapi.NewEventsAPI(a.Aggregator, filter, exporter, a.Parser.Now, httpapi.EventsAPIConfig{
		Days:      a.Config.Views.Days,
		SoonHours: a.Config.Views.SoonHours,
	}, a.Logger)

	a.HTTPServer = httpapi.New(eventsAPI, a.Metrics, a.Logger)

	mcpHandler := mcp.NewHandler(a.Aggregator, filter, a.Parser.Now, a.Config.Views.Days, a.Config.Views.SoonHours, a.Logger)
	a.MCPServer = mcp.NewServer(mcpHandler, os.Stdin, os.Stdout, a.Logger)
}
