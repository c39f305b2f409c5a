// Package rotation cycles the inline banner strip through eligible promotions.
package rotation

import "promo-gate/internal/promotion"

// Scheduler is the pure rotation state: the inline subset and the index of
// the banner on display. It is not safe for concurrent use; Driver guards it.
type Scheduler struct {
	items []promotion.Item
	index int
}

// SetItems replaces the rotation with the inline subset of eligible. The
// current index is kept modulo the new length.
func (s *Scheduler) SetItems(eligible []promotion.Item) {
	s.items = promotion.Inlines(eligible)
	if len(s.items) == 0 {
		s.index = 0
		return
	}
	s.index %= len(s.items)
}

// Tick advances to the next banner. It is a no-op with fewer than two banners.
func (s *Scheduler) Tick() bool {
	if !s.NeedsTicking() {
		return false
	}
	s.index = (s.index + 1) % len(s.items)
	return true
}

func (s *Scheduler) Current() (promotion.Item, bool) {
	if len(s.items) == 0 {
		return promotion.Item{}, false
	}
	return s.items[s.index], true
}

func (s *Scheduler) NeedsTicking() bool { return len(s.items) > 1 }

func (s *Scheduler) Index() int { return s.index }

func (s *Scheduler) Len() int { return len(s.items) }
