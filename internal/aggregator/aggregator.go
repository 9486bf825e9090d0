package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/logging"
	"github.com/johnrirwin/agenda/internal/metrics"
	"github.com/johnrirwin/agenda/internal/models"
	"github.com/johnrirwin/agenda/internal/sources"
)

// Refresher is implemented by retrievers that can repopulate their cache
// ahead of requests.
type Refresher interface {
	Refresh(ctx context.Context, cfg sources.SourceConfig) error
}

// Invalidator is implemented by retrievers that can drop a cached payload,
// so a payload that fails to normalize is fetched again next time.
type Invalidator interface {
	Invalidate(ctx context.Context, cfg sources.SourceConfig)
}

// Aggregator fetches every enabled source, normalizes the payloads and
// merges the results. It keeps no events between calls.
type Aggregator struct {
	table     *sources.SourcesConfig
	retriever sources.Retriever
	registry  *sources.Registry
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

func New(table *sources.SourcesConfig, retriever sources.Retriever, registry *sources.Registry, m *metrics.Metrics, logger *logging.Logger) *Aggregator {
	return &Aggregator{
		table:     table,
		retriever: retriever,
		registry:  registry,
		metrics:   m,
		logger:    logger,
	}
}

type fetchResult struct {
	key       string
	events    []models.Event
	err       error
	fromCache bool
	took      time.Duration
}

// FetchAll retrieves and normalizes every enabled config concurrently and
// waits for all of them. A failing source maps to an empty list; disabled
// sources are absent from the result.
func (a *Aggregator) FetchAll(ctx context.Context, configs []sources.SourceConfig) map[string][]models.Event {
	var wg sync.WaitGroup
	results := make(chan fetchResult, len(configs))

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		wg.Add(1)
		go func(cfg sources.SourceConfig) {
			defer wg.Done()
			results <- a.fetchOne(ctx, cfg)
		}(cfg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string][]models.Event)
	for result := range results {
		log := a.logger.With(logging.WithField("source", result.key))

		status := metrics.StatusOK
		switch {
		case result.err != nil:
			status = metrics.StatusError
			log.Warn("Failed to fetch from source", logging.WithField("error", result.err.Error()))
			result.events = []models.Event{}
		case result.fromCache:
			status = metrics.StatusCache
		}

		a.metrics.ObserveFetch(result.key, status, result.took, len(result.events))
		log.Debug("Fetched events from source", logging.WithFields(map[string]interface{}{
			"count":  len(result.events),
			"cached": result.fromCache,
			"took":   result.took.String(),
		}))

		out[result.key] = result.events
	}

	return out
}

func (a *Aggregator) fetchOne(ctx context.Context, cfg sources.SourceConfig) fetchResult {
	start := time.Now()
	result := fetchResult{key: cfg.Key}

	payload, err := a.retriever.Retrieve(ctx, cfg)
	if err != nil {
		result.err = err
		result.took = time.Since(start)
		return result
	}

	result.events, result.err = a.registry.Normalize(cfg, payload)
	result.fromCache = payload.FromCache
	if result.err != nil {
		if invalidator, ok := a.retriever.(Invalidator); ok {
			invalidator.Invalidate(ctx, cfg)
		}
	}
	result.took = time.Since(start)
	return result
}

// Events returns the merged, sorted events of every enabled source.
func (a *Aggregator) Events(ctx context.Context) []models.Event {
	perSource := a.FetchAll(ctx, a.table.Sources)

	// merge in table order so equal dates come out deterministically
	lists := make([][]models.Event, 0, len(perSource))
	for _, cfg := range a.table.Sources {
		if events, ok := perSource[cfg.Key]; ok {
			lists = append(lists, events)
		}
	}

	merged := MergeAndSort(lists...)
	a.logger.Info("Aggregation complete", logging.WithFields(map[string]interface{}{
		"total_events": len(merged),
		"sources_used": len(perSource),
	}))
	return merged
}

// Sources lists the configured sources, disabled ones included.
func (a *Aggregator) Sources() []models.SourceInfo {
	out := make([]models.SourceInfo, 0, len(a.table.Sources))
	for _, cfg := range a.table.Sources {
		out = append(out, cfg.Info())
	}
	return out
}

// Warm refreshes the cached payload of every enabled source. It is a no-op
// when the retriever has no cache to fill.
func (a *Aggregator) Warm(ctx context.Context) {
	refresher, ok := a.retriever.(Refresher)
	if !ok {
		return
	}

	var wg sync.WaitGroup
	for _, cfg := range a.table.Enabled() {
		wg.Add(1)
		go func(cfg sources.SourceConfig) {
			defer wg.Done()
			if err := refresher.Refresh(ctx, cfg); err != nil {
				a.logger.With(logging.WithField("source", cfg.Key)).
					Warn("Failed to warm source", logging.WithField("error", err.Error()))
			}
		}(cfg)
	}
	wg.Wait()
}

// MergeAndSort concatenates the lists and stable-sorts them by start date.
// Events whose start date does not parse go last, in input order.
func MergeAndSort(lists ...[]models.Event) []models.Event {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	merged := make([]models.Event, 0, total)
	for _, l := range lists {
		merged = append(merged, l...)
	}

	keys := make([]time.Time, len(merged))
	valid := make([]bool, len(merged))
	for i, e := range merged {
		t, err := time.Parse(dates.DateLayout, dates.DateOnly(e.StartDate))
		keys[i], valid[i] = t, err == nil
	}

	sort.Stable(byStart{events: merged, keys: keys, valid: valid})
	return merged
}

// byStart sorts events together with their precomputed keys.
type byStart struct {
	events []models.Event
	keys   []time.Time
	valid  []bool
}

func (s byStart) Len() int { return len(s.events) }

func (s byStart) Less(i, j int) bool {
	if s.valid[i] != s.valid[j] {
		return s.valid[i]
	}
	return s.keys[i].Before(s.keys[j])
}

func (s byStart) Swap(i, j int) {
	s.events[i], s.events[j] = s.events[j], s.events[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
	s.valid[i], s.valid[j] = s.valid[j], s.valid[i]
}
