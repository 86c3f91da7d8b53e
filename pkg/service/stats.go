package service

import (
	"context"
	"fmt"
	"time"

	"shortlinks/pkg/storage"
)

type DailyStat struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// StatsByDay returns one entry per day from the earliest recorded click through
// today, zero-filled. An empty code aggregates every known link. No clicks at all
// gives an empty slice.
func (s *LinkService) StatsByDay(ctx context.Context, code string) ([]DailyStat, error) {
	codes, err := s.statsScope(ctx, code)
	if err != nil {
		return nil, err
	}

	earliest, ok, err := s.ledger.EarliestDay(ctx, codes)
	if err != nil {
		return nil, s.storageFailure(ctx, "earliest_day", code, err)
	}
	if !ok {
		return []DailyStat{}, nil
	}

	today := storage.DayOf(s.now(), s.loc)
	counts, err := s.ledger.AggregateByDay(ctx, codes, earliest, today)
	if err != nil {
		return nil, s.storageFailure(ctx, "aggregate_by_day", code, err)
	}

	stats, err := fillDays(earliest, today, counts)
	if err != nil {
		s.logger.Error(ctx, "bad day in click ledger", "code", code, "error", err)
		return nil, ErrStorageFailure
	}
	return stats, nil
}

// statsScope resolves the ledger filter: the single code, or every stored code.
func (s *LinkService) statsScope(ctx context.Context, code string) ([]string, error) {
	if code != "" {
		exists, err := s.links.Exists(ctx, code)
		if err != nil {
			return nil, s.storageFailure(ctx, "exists", code, err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return []string{code}, nil
	}

	links, err := s.links.ListAll(ctx)
	if err != nil {
		return nil, s.storageFailure(ctx, "list", "", err)
	}
	codes := make([]string, 0, len(links))
	for _, l := range links {
		codes = append(codes, l.Code)
	}
	return codes, nil
}

// fillDays expands sparse counts to a contiguous from..to range.
func fillDays(from, to string, counts []storage.DayCount) ([]DailyStat, error) {
	start, err := time.Parse(storage.DayLayout, from)
	if err != nil {
		return nil, fmt.Errorf("parse from day: %w", err)
	}
	end, err := time.Parse(storage.DayLayout, to)
	if err != nil {
		return nil, fmt.Errorf("parse to day: %w", err)
	}
	if end.Before(start) {
		return []DailyStat{}, nil
	}

	byDay := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDay[c.Day] += c.Count
	}

	stats := make([]DailyStat, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format(storage.DayLayout)
		stats = append(stats, DailyStat{Date: day, Count: byDay[day]})
	}
	return stats, nil
}
