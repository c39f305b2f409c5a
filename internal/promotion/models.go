package promotion

import (
	"errors"
	"strings"
	"time"
)

// Display is the rendering behavior of a promotion. Exactly one of
// Inline, Popup or Link.
type Display interface {
	Type() string
	isDisplay()
}

// Inline promotions rotate in the banner strip.
type Inline struct{}

// Popup promotions open in a dialog.
type Popup struct{}

// Link promotions navigate to an external URL.
type Link struct{ URL string }

func (Inline) Type() string { return "inline" }
func (Popup) Type() string  { return "popup" }
func (Link) Type() string   { return "url" }

func (Inline) isDisplay() {}
func (Popup) isDisplay()  {}
func (Link) isDisplay()   {}

var ErrLinkRequired = errors.New("url promotion requires a link")

// NewLink builds the url variant; the link is mandatory.
func NewLink(u string) (Link, error) {
	u = strings.TrimSpace(u)
	if u == "" {
		return Link{}, ErrLinkRequired
	}
	return Link{URL: u}, nil
}

// Status is "active" or "inactive"; anything else reads as inactive.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusActive)) {
		return StatusActive
	}
	return StatusInactive
}

// Window bounds; a nil bound is open on that side.
type Window struct {
	Start *time.Time
	End   *time.Time
}

func (w Window) Contains(now time.Time) bool {
	if w.Start != nil && w.Start.After(now) {
		return false
	}
	if w.End != nil && w.End.Before(now) {
		return false
	}
	return true
}

type Item struct {
	ID       string
	Title    string
	ImageURL string
	Display  Display
	Window   Window
	Status   Status
}

// Eligible reports whether the item may be shown at now.
func (it Item) Eligible(now time.Time) bool {
	return it.Status == StatusActive && it.Window.Contains(now)
}

func (it Item) IsPopup() bool {
	_, ok := it.Display.(Popup)
	return ok
}

// IsInline is true for the inline variant and for items with no display set.
func (it Item) IsInline() bool {
	switch it.Display.(type) {
	case Inline, nil:
		return true
	}
	return false
}

// FilterEligible keeps eligible items in server order.
func FilterEligible(items []Item, now time.Time) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Eligible(now) {
			out = append(out, it)
		}
	}
	return out
}

func Inlines(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.IsInline() {
			out = append(out, it)
		}
	}
	return out
}

func Popups(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.IsPopup() {
			out = append(out, it)
		}
	}
	return out
}

// Find returns the item with the given id.
func Find(items []Item, id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
