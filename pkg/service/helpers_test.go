package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"shortlinks/pkg/logging"
	"shortlinks/pkg/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// syncSink writes clicks straight to the ledger so tests can read them back at once.
type syncSink struct {
	ledger storage.ClickLedger
	loc    *time.Location
}

func (s syncSink) Record(ctx context.Context, code string, at time.Time) {
	_ = s.ledger.Append(ctx, storage.NewClickEvent(code, at, s.loc))
}

type staticQR struct{ ref string }

func (q staticQR) Issue(context.Context, string, string) string { return q.ref }
func (staticQR) Discard(context.Context, string) {}

// recordingQR issues a fixed reference and remembers discarded ones.
type recordingQR struct {
	ref       string
	mu        sync.Mutex
	discarded []string
}

func (q *recordingQR) Issue(context.Context, string, string) string { return q.ref }

func (q *recordingQR) Discard(_ context.Context, ref string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discarded = append(q.discarded, ref)
}

// hangingQR ignores its context and never returns on its own.
type hangingQR struct{ release chan struct{} }

func (q hangingQR) Issue(context.Context, string, string) string {
	<-q.release
	return "too-late"
}

func (hangingQR) Discard(context.Context, string) {}

var errBackend = errors.New("pq: connection refused on 10.0.0.7")

type failingLinks struct{ storage.LinkStorage }

func (failingLinks) Exists(context.Context, string) (bool, error) { return false, errBackend }
func (failingLinks) Save(context.Context, *storage.ShortLink) error { return errBackend }
func (failingLinks) Get(context.Context, string) (*storage.ShortLink, error) {
	return nil, errBackend
}
func (failingLinks) ListAll(context.Context) ([]storage.ShortLink, error) { return nil, errBackend }

// saveFailingLinks answers lookups from memory but cannot persist.
type saveFailingLinks struct{ *storage.MemoryStorage }

func (saveFailingLinks) Save(context.Context, *storage.ShortLink) error { return errBackend }

type testEnv struct {
	svc   *LinkService
	store *storage.MemoryStorage
	clock *fakeClock
}

func newTestEnv(t *testing.T, cfg LinkServiceConfig) *testEnv {
	t.Helper()
	store := storage.NewMemoryStorage()
	clock := newFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sho.rt"
	}
	cfg.Now = clock.Now
	gen := NewGenerator(rand.New(rand.NewPCG(1, 2)), DefaultCodeLength, DefaultMaxAttempts)
	svc := NewLinkService(store, store, nil, gen, syncSink{ledger: store, loc: cfg.Location}, logging.Discard(), cfg)
	return &testEnv{svc: svc, store: store, clock: clock}
}
