// Package popup decides when a popup promotion is presented: automatically at
// most once per session, or whenever the user explicitly asks for one.
package popup

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"promo-gate/internal/observability"
	"promo-gate/internal/promotion"
)

type State int

const (
	Idle State = iota
	Shown
)

func (s State) String() string {
	if s == Shown {
		return "shown"
	}
	return "idle"
}

// Marker is the once-per-session flag. It is not tied to any item.
// Claim sets it and reports whether this call was the one that set it.
// Touch keeps it alive for as long as the session is.
type Marker interface {
	IsSet(ctx context.Context) (bool, error)
	Claim(ctx context.Context) (bool, error)
	Touch(ctx context.Context) error
}

// Gate is the popup state machine for one session.
type Gate struct {
	marker Marker

	mu        sync.Mutex
	state     State
	presented promotion.Item
}

func NewGate(m Marker) *Gate {
	if m == nil {
		m = &MemoryMarker{}
	}
	return &Gate{marker: m}
}

// OnMount auto-presents the first popup-type item if the session has not
// seen one yet. It reports whether a popup was presented.
func (g *Gate) OnMount(ctx context.Context, eligible []promotion.Item) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Shown {
		return false
	}
	popups := promotion.Popups(eligible)
	if len(popups) == 0 {
		return false
	}
	first, err := g.marker.Claim(ctx)
	if err != nil {
		// an unreadable marker must not cause repeats
		log.Warn().Err(err).Msg("popup marker unavailable; skipping auto popup")
		return false
	}
	if !first {
		return false
	}

	g.state = Shown
	g.presented = popups[0]
	observability.PopupsPresented.WithLabelValues("auto").Inc()
	return true
}

// Select presents item regardless of the session marker.
func (g *Gate) Select(item promotion.Item) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Shown
	g.presented = item
	observability.PopupsPresented.WithLabelValues("manual").Inc()
}

// Dismiss closes the popup. The marker stays set.
func (g *Gate) Dismiss() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Idle
	g.presented = promotion.Item{}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Presented returns the item on screen, if any.
func (g *Gate) Presented() (promotion.Item, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.presented, g.state == Shown
}

// MarkerSet reports whether the session already had its automatic popup.
// A marker read error reads as set.
func (g *Gate) MarkerSet(ctx context.Context) bool {
	set, err := g.marker.IsSet(ctx)
	if err != nil {
		return true
	}
	return set
}

// Touch extends the marker's lifetime along with the session's.
func (g *Gate) Touch(ctx context.Context) {
	if err := g.marker.Touch(ctx); err != nil {
		log.Warn().Err(err).Msg("popup marker touch failed")
	}
}
