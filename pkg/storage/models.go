package storage

import (
	"time"

	"github.com/google/uuid"
)

// DayLayout is the calendar-day format used by the click ledger.
const DayLayout = "2006-01-02"

// Window bounds the period in which a short link redirects. Either side may be open.
type Window struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the window.
func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

type ShortLink struct {
	Code         string    `json:"code" db:"code"`
	LongURL      string    `json:"long_url" db:"long_url"`
	Title        string    `json:"title,omitempty" db:"title"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ActiveWindow *Window   `json:"active_window,omitempty"`
	QRReference  string    `json:"qr_reference,omitempty" db:"qr_reference"`
}

type ClickEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	ClickedAt time.Time `json:"clicked_at" db:"clicked_at"`
	Day       string    `json:"day" db:"day"`
	Count     int       `json:"count" db:"count"`
}

// NewClickEvent builds a single click for code at t, keyed to the calendar day of t in loc.
func NewClickEvent(code string, t time.Time, loc *time.Location) *ClickEvent {
	return &ClickEvent{
		ID:        uuid.New(),
		Code:      code,
		ClickedAt: t.UTC(),
		Day:       DayOf(t, loc),
		Count:     1,
	}
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// DayCount is one aggregated ledger row.
type DayCount struct {
	Day   string `json:"date"`
	Count int64  `json:"count"`
}
