package service

import (
	"context"
	"sync"
	"time"

	"shortlinks/pkg/logging"
	"shortlinks/pkg/storage"

	"github.com/cenkalti/backoff/v4"
)

// ClickSink takes clicks off the redirect path. Record never blocks on storage
// and has no error to return; failures are the sink's to log.
type ClickSink interface {
	Record(ctx context.Context, code string, at time.Time)
}

type ClickRecorderConfig struct {
	Workers         int
	QueueSize       int
	InitialInterval time.Duration
	MaxElapsed      time.Duration
	AttemptTimeout  time.Duration
	Location        *time.Location
}

func (c *ClickRecorderConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 30 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

type clickJob struct {
	ctx   context.Context
	event *storage.ClickEvent
}

// ClickRecorder writes clicks to the ledger from a bounded queue drained by a
// worker pool. Writes are retried with exponential backoff, so a click may be
// stored twice but is only dropped after its retries are spent, and then logged.
type ClickRecorder struct {
	ledger storage.ClickLedger
	logger *logging.Logger
	cfg    ClickRecorderConfig

	queue    chan clickJob
	workers  sync.WaitGroup
	overflow sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewClickRecorder(ledger storage.ClickLedger, logger *logging.Logger, cfg ClickRecorderConfig) *ClickRecorder {
	cfg.setDefaults()
	return &ClickRecorder{
		ledger: ledger,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan clickJob, cfg.QueueSize),
	}
}

// Start launches the workers.
func (r *ClickRecorder) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.workers.Add(1)
		go func() {
			defer r.workers.Done()
			for job := range r.queue {
				r.write(job.ctx, job.event)
			}
		}()
	}
}

func (r *ClickRecorder) Record(ctx context.Context, code string, at time.Time) {
	job := clickJob{
		ctx:   context.WithoutCancel(ctx),
		event: storage.NewClickEvent(code, at, r.cfg.Location),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// After Close, clicks are written inline with one bounded attempt.
	if r.closed {
		r.writeOnce(job.ctx, job.event)
		return
	}
	select {
	case r.queue <- job:
	default:
		r.logger.Warn(ctx, "click queue full, writing directly", "code", code)
		r.overflow.Add(1)
		go func() {
			defer r.overflow.Done()
			r.write(job.ctx, job.event)
		}()
	}
}

// Close stops accepting queued work and waits for pending clicks until ctx is done.
func (r *ClickRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		r.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Error(ctx, "click recorder closed with pending clicks", "pending", len(r.queue))
		return ctx.Err()
	}
}

func (r *ClickRecorder) writeOnce(ctx context.Context, event *storage.ClickEvent) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()
	if err := r.ledger.Append(attemptCtx, event); err != nil {
		r.logger.LogClickFailure(ctx, event.Code, event.ClickedAt, 1, err)
	}
}

func (r *ClickRecorder) write(ctx context.Context, event *storage.ClickEvent) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxElapsedTime = r.cfg.MaxElapsed

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
		return r.ledger.Append(attemptCtx, event)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		r.logger.LogClickFailure(ctx, event.Code, event.ClickedAt, attempts, err)
		return
	}
	if attempts > 1 {
		r.logger.Info(ctx, "click recorded after retry", "code", event.Code, "attempts", attempts)
	}
}
