// Package feature answers "is capability X enabled" for menu rendering.
//
// Lookups fail open: a flag the backend does not know about, or any failure
// to reach the backend, reads as enabled so no surface is hidden by an outage.
package feature

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"promo-gate/internal/cache"
	"promo-gate/internal/observability"
)

// DefaultStaleness is how long a fetched flag set is reused.
const DefaultStaleness = 5 * time.Minute

type Flag struct {
	ID        string `json:"id"`
	IsEnabled bool   `json:"isEnabled"`
}

// Envelope is the feature-flags endpoint body; a missing array is empty.
type Envelope struct {
	Features []Flag `json:"features"`
}

type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

type Gate struct {
	fetch Getter
	path  string
	flags *cache.Stale[map[string]bool]
	group singleflight.Group
}

func NewGate(fetch Getter, path string, clk clock.Clock, staleness time.Duration) *Gate {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Gate{
		fetch: fetch,
		path:  path,
		flags: cache.NewStale[map[string]bool](clk, staleness),
	}
}

// IsEnabled is false only when the backend explicitly disabled id.
func (g *Gate) IsEnabled(ctx context.Context, id string) bool {
	enabled, known := g.load(ctx)[id]
	if !known {
		return true
	}
	return enabled
}

// Snapshot returns a copy of the known flags.
func (g *Gate) Snapshot(ctx context.Context) map[string]bool {
	flags := g.load(ctx)
	out := make(map[string]bool, len(flags))
	for k, v := range flags {
		out[k] = v
	}
	return out
}

func (g *Gate) Invalidate() {
	g.flags.Invalidate()
}

func (g *Gate) load(ctx context.Context) map[string]bool {
	if flags, ok := g.flags.Get(); ok {
		observability.CacheResult("features", true)
		return flags
	}
	observability.CacheResult("features", false)

	shared := context.WithoutCancel(ctx)
	v, _, _ := g.group.Do("features", func() (any, error) {
		if flags, ok := g.flags.Get(); ok {
			return flags, nil
		}
		var env Envelope
		if err := g.fetch.Get(shared, g.path, &env); err != nil {
			log.Warn().Err(err).Str("endpoint", g.path).Msg("feature flags unavailable; failing open")
			return map[string]bool{}, nil
		}
		flags := make(map[string]bool, len(env.Features))
		for _, f := range env.Features {
			if f.ID == "" {
				continue
			}
			flags[f.ID] = f.IsEnabled
		}
		g.flags.Set(flags)
		return flags, nil
	})
	return v.(map[string]bool)
}
