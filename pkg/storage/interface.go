package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

// LinkStorage persists short links keyed by code.
type LinkStorage interface {
	Exists(ctx context.Context, code string) (bool, error)
	// Save writes link, overwriting any existing row with the same code.
	Save(ctx context.Context, link *ShortLink) error
	// Get returns ErrNotFound when code is unknown.
	Get(ctx context.Context, code string) (*ShortLink, error)
	ListAll(ctx context.Context) ([]ShortLink, error)
}

// ClickLedger is the append-only click log.
//
// A nil codes filter means every code; an empty non-nil filter matches nothing.
// Days are DayLayout strings and ranges are inclusive.
type ClickLedger interface {
	Append(ctx context.Context, event *ClickEvent) error
	// EarliestDay returns the first day with a click, or ok=false when there are none.
	EarliestDay(ctx context.Context, codes []string) (day string, ok bool, err error)
	// AggregateByDay returns non-zero days only, ordered by day.
	AggregateByDay(ctx context.Context, codes []string, from, to string) ([]DayCount, error)
}
