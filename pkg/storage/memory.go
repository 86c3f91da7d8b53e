package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps links and clicks in process memory. It implements both
// LinkStorage and ClickLedger.
type MemoryStorage struct {
	mu     sync.RWMutex
	links  map[string]ShortLink
	clicks []ClickEvent
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{links: make(map[string]ShortLink)}
}

func (m *MemoryStorage) Exists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[code]
	return ok, nil
}

func (m *MemoryStorage) Save(_ context.Context, link *ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.Code] = *link
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, code string) (*ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (m *MemoryStorage) ListAll(_ context.Context) ([]ShortLink, error) {
	m.mu.RLock()
	links := make([]ShortLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.RUnlock()

	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].Code < links[j].Code
	})
	return links, nil
}

func (m *MemoryStorage) Append(_ context.Context, event *ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = append(m.clicks, *event)
	return nil
}

func (m *MemoryStorage) EarliestDay(_ context.Context, codes []string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match := codeSet(codes)
	earliest := ""
	for _, c := range m.clicks {
		if !match(c.Code) {
			continue
		}
		if earliest == "" || c.Day < earliest {
			earliest = c.Day
		}
	}
	return earliest, earliest != "", nil
}

func (m *MemoryStorage) AggregateByDay(_ context.Context, codes []string, from, to string) ([]DayCount, error) {
	m.mu.RLock()
	match := codeSet(codes)
	byDay := make(map[string]int64)
	for _, c := range m.clicks {
		if match(c.Code) && c.Day >= from && c.Day <= to {
			byDay[c.Day] += int64(c.Count)
		}
	}
	m.mu.RUnlock()

	counts := make([]DayCount, 0, len(byDay))
	for day, n := range byDay {
		counts = append(counts, DayCount{Day: day, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Day < counts[j].Day })
	return counts, nil
}

func codeSet(codes []string) func(string) bool {
	if codes == nil {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(code string) bool {
		_, ok := set[code]
		return ok
	}
}
