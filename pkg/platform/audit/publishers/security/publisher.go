// Package security routes security-category audit events (failed OTP
// verifications, throttling, failed logins, declined charges) through a
// bounded ring buffer instead of the caller's transaction.
//
// Emit never blocks and never fails for a security event. The events are
// written to the downstream publisher by Run, so they survive the rollback of
// the operation that produced them. Other categories pass straight through.
package security

import (
	"context"
	"log/slog"
	"time"

	audit "securecard/pkg/platform/audit"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

type Publisher struct {
	next      audit.Publisher
	buffer    *RingBuffer
	logger    *slog.Logger
	metrics   *Metrics
	batchSize int
	interval  time.Duration
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCapacity sets how many unflushed events are kept before the oldest is
// overwritten.
func WithCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func New(next audit.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		next:      next,
		batchSize: defaultBatchSize,
		interval:  defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer == nil {
		p.buffer = NewRingBuffer(defaultCapacity)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	if category != audit.CategorySecurity {
		return p.next.Emit(ctx, event)
	}

	event.Category = category
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.metrics.incBuffered()
	if p.buffer.Enqueue(event) {
		p.metrics.incDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "security audit buffer full, oldest event overwritten",
				"action", event.Action,
			)
		}
	}
	return nil
}

// Flush writes everything buffered so far and returns how many events the
// downstream publisher accepted.
func (p *Publisher) Flush(ctx context.Context) int {
	written := 0
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return written
		}
		for _, event := range batch {
			if err := p.next.Emit(ctx, event); err != nil {
				p.metrics.incFlushFailure()
				if p.logger != nil {
					p.logger.ErrorContext(ctx, "failed to flush security audit event",
						"action", event.Action,
						"error", err,
					)
				}
				continue
			}
			written++
		}
	}
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

func (p *Publisher) Pending() int {
	return p.buffer.Len()
}
