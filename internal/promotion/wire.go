package promotion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingID    = errors.New("promotion has no id")
	ErrMissingImage = errors.New("promotion has no imageUrl")
	ErrDisplayType  = errors.New("unknown displayType")
)

// Envelope is the promotions endpoint body. Items stay raw so a single
// malformed entry does not discard the rest.
type Envelope struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
}

type wireItem struct {
	ID          flexID    `json:"id"`
	Title       string    `json:"title"`
	ImageURL    string    `json:"imageUrl"`
	LinkURL     string    `json:"linkUrl,omitempty"`
	DisplayType string    `json:"displayType,omitempty"`
	StartTime   *flexTime `json:"startTime,omitempty"`
	EndTime     *flexTime `json:"endTime,omitempty"`
	Status      string    `json:"status"`
}

// Decode parses one wire item into an Item.
func Decode(raw []byte) (Item, error) {
	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return Item{}, err
	}
	if w.ID == "" {
		return Item{}, ErrMissingID
	}
	if strings.TrimSpace(w.ImageURL) == "" {
		return Item{}, fmt.Errorf("%s: %w", w.ID, ErrMissingImage)
	}

	var d Display
	switch strings.ToLower(strings.TrimSpace(w.DisplayType)) {
	case "", "inline":
		d = Inline{}
	case "popup":
		d = Popup{}
	case "url":
		l, err := NewLink(w.LinkURL)
		if err != nil {
			return Item{}, fmt.Errorf("%s: %w", w.ID, err)
		}
		d = l
	default:
		return Item{}, fmt.Errorf("%s: %w %q", w.ID, ErrDisplayType, w.DisplayType)
	}

	it := Item{
		ID:       string(w.ID),
		Title:    w.Title,
		ImageURL: w.ImageURL,
		Display:  d,
		Status:   ParseStatus(w.Status),
	}
	if w.StartTime != nil && !time.Time(*w.StartTime).IsZero() {
		t := time.Time(*w.StartTime)
		it.Window.Start = &t
	}
	if w.EndTime != nil && !time.Time(*w.EndTime).IsZero() {
		t := time.Time(*w.EndTime)
		it.Window.End = &t
	}
	return it, nil
}

func (it Item) MarshalJSON() ([]byte, error) {
	w := wireItem{
		ID:       flexID(it.ID),
		Title:    it.Title,
		ImageURL: it.ImageURL,
		Status:   string(it.Status),
	}
	switch d := it.Display.(type) {
	case Link:
		w.DisplayType = d.Type()
		w.LinkURL = d.URL
	case nil:
		w.DisplayType = Inline{}.Type()
	default:
		w.DisplayType = d.Type()
	}
	if it.Window.Start != nil {
		ft := flexTime(*it.Window.Start)
		w.StartTime = &ft
	}
	if it.Window.End != nil {
		ft := flexTime(*it.Window.End)
		w.EndTime = &ft
	}
	return json.Marshal(w)
}

func (it *Item) UnmarshalJSON(b []byte) error {
	d, err := Decode(b)
	if err != nil {
		return err
	}
	*it = d
	return nil
}

// flexID accepts string or numeric ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime accepts RFC 3339, a few common backend layouts, or epoch millis.
// Null and "" decode to the zero time, meaning an open bound.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = flexTime{}
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		ms, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %s: %w", b, err)
		}
		*f = flexTime(time.UnixMilli(ms).UTC())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = flexTime{}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognized layout", s)
}

func (f flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(f).Format(time.RFC3339))
}
