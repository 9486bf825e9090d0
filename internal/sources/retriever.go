package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/johnrirwin/agenda/internal/cache"
	"github.com/johnrirwin/agenda/internal/logging"
	"github.com/johnrirwin/agenda/internal/ratelimit"
)

// maxPayloadSize bounds how much of an upstream body is read.
const maxPayloadSize = 16 << 20

// Retriever fetches the raw payload of one source.
type Retriever interface {
	Retrieve(ctx context.Context, cfg SourceConfig) (RawPayload, error)
}

type RetrieverConfig struct {
	Timeout   time.Duration
	UserAgent string
	CacheTTL  time.Duration
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Timeout:   10 * time.Second,
		UserAgent: "AgendaProxy/1.0",
		CacheTTL:  5 * time.Minute,
	}
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Key        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source %s returned HTTP %d", e.Key, e.StatusCode)
}

// HTTPRetriever performs plain GETs, spacing requests per host and
// optionally reusing recent payloads from a cache.
type HTTPRetriever struct {
	client  *http.Client
	config  RetrieverConfig
	limiter *ratelimit.Limiter
	cache   cache.Cache
	logger  *logging.Logger
}

func NewHTTPRetriever(config RetrieverConfig, limiter *ratelimit.Limiter, c cache.Cache, logger *logging.Logger) *HTTPRetriever {
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = logging.NewFromZap(nil)
	}
	return &HTTPRetriever{
		client:  &http.Client{},
		config:  config,
		limiter: limiter,
		cache:   c,
		logger:  logger,
	}
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, cfg SourceConfig) (RawPayload, error) {
	if body, ok := r.cache.Get(ctx, cfg.Key); ok {
		r.logger.Debug("Serving payload from cache", logging.WithField("source", cfg.Key))
		return RawPayload{Key: cfg.Key, Body: body, FromCache: true}, nil
	}

	body, err := r.fetch(ctx, cfg)
	if err != nil {
		return RawPayload{}, err
	}

	r.cache.Set(ctx, cfg.Key, body, r.config.CacheTTL)
	return RawPayload{Key: cfg.Key, Body: body}, nil
}

// Refresh fetches the payload bypassing the cache read and stores it.
func (r *HTTPRetriever) Refresh(ctx context.Context, cfg SourceConfig) error {
	body, err := r.fetch(ctx, cfg)
	if err != nil {
		return err
	}
	r.cache.Set(ctx, cfg.Key, body, r.config.CacheTTL)
	return nil
}

// Invalidate drops the cached payload of cfg.
func (r *HTTPRetriever) Invalidate(ctx context.Context, cfg SourceConfig) {
	r.cache.Delete(ctx, cfg.Key)
}

func (r *HTTPRetriever) fetch(ctx context.Context, cfg SourceConfig) ([]byte, error) {
	if err := r.limiter.Wait(ctx, cfg.Host()); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", cfg.Key, err)
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	target, err := cfg.URL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", cfg.Key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Key: cfg.Key, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s body: %w", cfg.Key, err)
	}
	return body, nil
}
