package promotion

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"promo-gate/internal/cache"
	"promo-gate/internal/observability"
)

// DefaultStaleness is how long a fetched promotion set is reused.
const DefaultStaleness = 2 * time.Minute

// Getter is the slice of the remote fetcher the repository needs.
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

// Repository serves eligible promotions. It never returns an error: any
// upstream problem yields an empty sequence.
type Repository struct {
	fetch Getter
	path  string
	items *cache.Stale[[]Item]
	group singleflight.Group
}

func NewRepository(fetch Getter, path string, clk clock.Clock, staleness time.Duration) *Repository {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Repository{
		fetch: fetch,
		path:  path,
		items: cache.NewStale[[]Item](clk, staleness),
	}
}

// FetchEligible returns promotions eligible at now, in server order. The
// raw set may come from cache; eligibility is always evaluated against now.
func (r *Repository) FetchEligible(ctx context.Context, now time.Time) []Item {
	return FilterEligible(r.load(ctx), now)
}

func (r *Repository) load(ctx context.Context) []Item {
	if items, ok := r.items.Get(); ok {
		observability.CacheResult("promotions", true)
		return items
	}
	observability.CacheResult("promotions", false)

	// The shared fetch outlives any single caller; the fetcher's own
	// timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do("promotions", func() (any, error) {
		if items, ok := r.items.Get(); ok {
			return items, nil
		}
		items, ok := r.fetchAll(shared)
		if ok {
			r.items.Set(items)
		}
		return items, nil
	})
	return v.([]Item)
}

func (r *Repository) fetchAll(ctx context.Context) ([]Item, bool) {
	var env Envelope
	if err := r.fetch.Get(ctx, r.path, &env); err != nil {
		log.Warn().Err(err).Str("endpoint", r.path).Msg("promotions unavailable")
		return []Item{}, false
	}
	if !env.Success {
		log.Warn().Str("endpoint", r.path).Msg("promotions response without success marker")
		return []Item{}, false
	}

	items := make([]Item, 0, len(env.Data))
	for _, raw := range env.Data {
		it, err := Decode(raw)
		if err != nil {
			log.Debug().Err(err).Msg("skipping malformed promotion")
			continue
		}
		items = append(items, it)
	}
	return items, true
}

// Invalidate drops the cached set; the next call fetches.
func (r *Repository) Invalidate() {
	r.items.Invalidate()
}
