package session

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"promo-gate/internal/observability"
	"promo-gate/internal/popup"
)

// MarkerFactory builds the popup marker for a new session.
type MarkerFactory func(sessionID string) popup.Marker

type Options struct {
	Clock    clock.Clock
	Interval time.Duration // rotation interval
	IdleTTL  time.Duration
	Markers  MarkerFactory
}

// Store keeps sessions alive while they are used. An idle session expires
// and is closed, which releases its rotation ticker.
type Store struct {
	src   Source
	opts  Options
	items *gocache.Cache
}

func NewStore(src Source, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.Markers == nil {
		opts.Markers = func(string) popup.Marker { return &popup.MemoryMarker{} }
	}

	c := gocache.New(opts.IdleTTL, opts.IdleTTL/2)
	c.OnEvicted(func(id string, v any) {
		if s, ok := v.(*Session); ok {
			s.Close()
			observability.SessionsActive.Dec()
			log.Debug().Str("session", id).Msg("session closed")
		}
	})
	return &Store{src: src, opts: opts, items: c}
}

func (st *Store) Create() *Session {
	id := uuid.NewString()
	s := newSession(id, st.opts.Clock, st.src, st.opts.Interval, st.opts.Markers(id))
	st.items.Set(id, s, gocache.DefaultExpiration)
	observability.SessionsActive.Inc()
	return s
}

// Get returns the session and extends its idle deadline, including the
// deadline of its popup marker.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	v, ok := st.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	// Replace fails if the entry was deleted or expired since the read.
	if err := st.items.Replace(id, v, gocache.DefaultExpiration); err != nil {
		return nil, ErrNotFound
	}
	s := v.(*Session)
	s.Touch(ctx)
	return s, nil
}

// Delete tears the session down.
func (st *Store) Delete(id string) error {
	if _, ok := st.items.Get(id); !ok {
		return ErrNotFound
	}
	st.items.Delete(id)
	return nil
}

func (st *Store) Len() int { return st.items.ItemCount() }

// Close tears down every session.
func (st *Store) Close() {
	for id := range st.items.Items() {
		st.items.Delete(id)
	}
}
