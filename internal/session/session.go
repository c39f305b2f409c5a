// Package session holds the promotion state of one mounted presentation tree:
// its banner rotation, its popup gate and the eligible set both were fed.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"promo-gate/internal/cache"
	"promo-gate/internal/popup"
	"promo-gate/internal/promotion"
	"promo-gate/internal/rotation"
)

var (
	ErrClosed           = errors.New("session closed")
	ErrNotFound         = errors.New("session not found")
	ErrUnknownPromotion = errors.New("promotion not in current set")
)

// Source supplies eligible promotions.
type Source interface {
	FetchEligible(ctx context.Context, now time.Time) []promotion.Item
}

type Session struct {
	ID string

	clk    clock.Clock
	source Source
	driver *rotation.Driver
	gate   *popup.Gate
	items  cache.Snapshot[[]promotion.Item]

	mu     sync.Mutex
	closed bool
	gen    uint64
}

// View is what a presentation surface renders.
type View struct {
	SessionID  string
	Banner     *promotion.Item
	BannerPos  int
	BannerLen  int
	Popup      *promotion.Item
	PopupState popup.State
	Eligible   []promotion.Item
}

func newSession(id string, clk clock.Clock, src Source, interval time.Duration, marker popup.Marker) *Session {
	return &Session{
		ID:     id,
		clk:    clk,
		source: src,
		driver: rotation.NewDriver(clk, interval),
		gate:   popup.NewGate(marker),
	}
}

// Mount fetches the eligible set and publishes it to the rotation and the
// popup gate. A result arriving after Close, or after a newer Mount began,
// is discarded.
func (s *Session) Mount(ctx context.Context) (View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrClosed
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	items := s.source.FetchEligible(ctx, s.clk.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrClosed
	}
	if gen == s.gen {
		s.items.Store(items)
		s.driver.Update(items)
		s.gate.OnMount(ctx, items)
	}
	return s.viewLocked(), nil
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Select presents the promotion with the given id, bypassing the
// once-per-session rule.
func (s *Session) Select(id string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrClosed
	}
	it, ok := promotion.Find(s.items.Load(), id)
	if !ok {
		return View{}, ErrUnknownPromotion
	}
	s.gate.Select(it)
	return s.viewLocked(), nil
}

func (s *Session) Dismiss() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrClosed
	}
	s.gate.Dismiss()
	return s.viewLocked(), nil
}

// Close stops the rotation ticker; the session accepts no further updates.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.driver.Stop()
}

// Touch extends the lifetime of state kept outside the process.
func (s *Session) Touch(ctx context.Context) { s.gate.Touch(ctx) }

// Rotating reports whether the banner ticker is live.
func (s *Session) Rotating() bool { return s.driver.Running() }

func (s *Session) viewLocked() View {
	v := View{
		SessionID:  s.ID,
		BannerPos:  s.driver.Index(),
		PopupState: s.gate.State(),
		Eligible:   s.items.Load(),
	}
	if b, ok := s.driver.Current(); ok {
		v.Banner = &b
		v.BannerLen = len(promotion.Inlines(v.Eligible))
	}
	if p, ok := s.gate.Presented(); ok {
		v.Popup = &p
	}
	return v
}
