package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/johnrirwin/agenda/internal/cache"
	"github.com/johnrirwin/agenda/internal/config"
	"github.com/johnrirwin/agenda/internal/models"
)

const upstreamBody = `{"events":[{"title":{"fr":"Bal"},"firstDate":"2024-03-01","lastDate":"2024-03-01","location":{"name":"Salle","city":"Lille"}}]}`

func upstream(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeSources(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	body := fmt.Sprintf("sources:\n  - key: upstream\n    endpoint: %s\n    format: openagenda\n    enabled: true\n", endpoint)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	return path
}

func testConfig(sourcesPath, backend string) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{HTTPAddr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Fetch:   config.FetchConfig{SourcesPath: sourcesPath, Timeout: 2 * time.Second},
		Cache:   config.CacheConfig{Backend: backend, TTL: time.Minute, RedisAddr: "127.0.0.1:1", WarmSchedule: "@every 1h"},
		Logging: config.LoggingConfig{Level: "error"},
		Locale:  config.LocaleConfig{Timezone: "UTC", Locale: "fr_FR"},
		Views:   config.ViewsConfig{Days: 7, SoonHours: 5, CalendarName: "Agenda"},
	}
}

func getEvents(t *testing.T, a *App) []models.Event {
	t.Helper()
	w := httptest.NewRecorder()
	a.HTTPServer.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/events status = %d", w.Code)
	}
	var events []models.Event
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return events
}

func TestNew_NoCache(t *testing.T) {
	srv, hits := upstream(t)
	a, err := New(testConfig(writeSources(t, srv.URL), "none"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, ok := a.Cache.(cache.Nop); !ok {
		t.Errorf("Cache = %T, want cache.Nop", a.Cache)
	}
	if a.warmer != nil {
		t.Error("warmer should only run with a cache")
	}
	if len(a.Sources.Sources) != 1 {
		t.Fatalf("loaded %d sources, want 1", len(a.Sources.Sources))
	}

	for i := 0; i < 2; i++ {
		events := getEvents(t, a)
		if len(events) != 1 || events[0].Title != "Bal" || events[0].Source != "upstream" {
			t.Fatalf("events = %+v", events)
		}
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Errorf("upstream hit %d times, want 2 without a cache", got)
	}
}

func TestNew_MemoryCacheWarm(t *testing.T) {
	srv, hits := upstream(t)
	a, err := New(testConfig(writeSources(t, srv.URL), "memory"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, ok := a.Cache.(*cache.MemoryCache); !ok {
		t.Fatalf("Cache = %T, want *cache.MemoryCache", a.Cache)
	}
	if a.warmer == nil {
		t.Fatal("warmer not scheduled")
	}

	a.Aggregator.Warm(context.Background())
	if _, ok := a.Cache.Get(context.Background(), "upstream"); !ok {
		t.Fatal("payload not cached after warm-up")
	}

	if events := getEvents(t, a); len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("upstream hit %d times, want 1", got)
	}
}

func TestNew_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	srv, _ := upstream(t)

	cfg := testConfig(writeSources(t, srv.URL), "redis")
	cfg.Cache.RedisAddr = mr.Addr()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, ok := a.Cache.(*cache.RedisCache); !ok {
		t.Fatalf("Cache = %T, want *cache.RedisCache", a.Cache)
	}
	getEvents(t, a)
	if len(mr.Keys()) != 1 {
		t.Errorf("redis keys = %v, want one cached payload", mr.Keys())
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_RedisFallsBackToMemory(t *testing.T) {
	srv, _ := upstream(t)
	a, err := New(testConfig(writeSources(t, srv.URL), "redis"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, ok := a.Cache.(*cache.MemoryCache); !ok {
		t.Errorf("Cache = %T, want memory fallback", a.Cache)
	}
}

func TestNew_InvalidWarmSchedule(t *testing.T) {
	cfg := testConfig("", "memory")
	cfg.Cache.WarmSchedule = "every now and then"
	if _, err := New(cfg); err == nil {
		t.Error("New() should reject an invalid warm schedule")
	}
}

func TestNew_Fallbacks(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.yaml"), "none")
	cfg.Locale.Timezone = "Mars/Olympus_Mons"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Parser.Location() != time.Local {
		t.Errorf("Location = %v, want time.Local for an unknown timezone", a.Parser.Location())
	}
	if len(a.Sources.Sources) == 0 {
		t.Error("default sources should be used when the file is missing")
	}
}
