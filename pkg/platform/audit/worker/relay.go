// Package worker drains the audit outbox to an external sink.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"securecard/pkg/platform/audit/store/postgres"
)

// Source is the outbox the relay reads from.
type Source interface {
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Sink receives outbox payloads keyed by aggregate id.
type Sink interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Relay polls the outbox and forwards rows to the sink in insertion order.
// Delivery is at least once: rows are marked only after the sink accepts them.
type Relay struct {
	source    Source
	sink      Sink
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(source Source, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		sink:      sink,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil {
				r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
			}
		}
	}
}

// Drain forwards one batch and returns how many rows were published. It stops
// at the first sink failure so ordering is preserved on the next pass.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	entries, err := r.source.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	published := make([]uuid.UUID, 0, len(entries))
	var sinkErr error
	for _, e := range entries {
		if err := r.sink.Publish(ctx, e.AggregateID, e.Payload); err != nil {
			sinkErr = err
			break
		}
		published = append(published, e.ID)
	}
	if err := r.source.MarkPublished(ctx, published); err != nil {
		return 0, err
	}
	return len(published), sinkErr
}
