// Package cache stores raw upstream payloads between refreshes.
package cache

import (
	"context"
	"time"
)

// Cache holds raw payload bytes keyed by source. A ttl of zero means the
// backend's default.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}

// Nop never stores anything. It is the default: every request is served
// from a fresh upstream fetch.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool)        { return nil, false }
func (Nop) Set(context.Context, string, []byte, time.Duration) {}
func (Nop) Delete(context.Context, string)                     {}
func (Nop) Clear(context.Context)                              {}

var _ Cache = Nop{}
