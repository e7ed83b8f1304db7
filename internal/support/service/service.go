// Package service handles support queries: users raise them, admins answer
// them once and the answer is mailed back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	supportmetrics "securecard/internal/support/metrics"
	"securecard/internal/support/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/email"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/sentinel"
	"securecard/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, q *models.Query) error
	FindByID(ctx context.Context, queryID id.QueryID) (*models.Query, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Query, error)
	Execute(ctx context.Context, queryID id.QueryID, fn func(*models.Query) error) (*models.Query, error)
}

type Service struct {
	queries        Store
	mailer         email.Sender
	logger         *slog.Logger
	auditPublisher audit.Publisher
	audit          *audit.Emitter
	metrics        *supportmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *supportmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(queries Store, mailer email.Sender, opts ...Option) *Service {
	s := &Service{
		queries: queries,
		mailer:  mailer,
		tracer:  otel.Tracer("securecard/support"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewEmitter(s.logger, s.auditPublisher)
	return s
}

// Submit records an open query from the caller.
func (s *Service) Submit(ctx context.Context, caller id.Caller, subject, message string) (*models.Query, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	q, err := models.NewQuery(id.NewQueryID(), caller, subject, message, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.queries.Create(ctx, q); err != nil {
		return nil, wrapQueryErr(err)
	}
	s.audit.Record(ctx, audit.EventQuerySubmitted, caller.UserID, "subject", q.ID)
	s.metrics.IncrementSubmitted()
	return q, nil
}

// ListOpen returns unresolved queries, oldest first.
func (s *Service) ListOpen(ctx context.Context, caller id.Caller) ([]*models.Query, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	queries, err := s.queries.ListByStatus(ctx, models.StatusOpen)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	return queries, nil
}

// Resolve closes an open query with reply and mails the reply to the asker.
// The query stays resolved when the mail cannot be sent.
func (s *Service) Resolve(ctx context.Context, caller id.Caller, queryID id.QueryID, reply string) (*models.Query, error) {
	ctx, span := s.tracer.Start(ctx, "support.resolve",
		trace.WithAttributes(attribute.String("query_id", queryID.String())),
	)
	defer span.End()

	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	reply, err := models.ValidateReply(reply)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	q, err := s.queries.Execute(ctx, queryID, func(q *models.Query) error {
		return q.Resolve(reply, now)
	})
	if err != nil {
		return nil, wrapQueryErr(err)
	}

	s.audit.Record(ctx, audit.EventQueryResolved, q.UserID,
		"subject", q.ID,
		"actor_id", caller.UserID,
	)
	s.metrics.IncrementResolved()
	s.sendReply(ctx, q)
	return q, nil
}

func (s *Service) sendReply(ctx context.Context, q *models.Query) {
	msg := email.Message{
		To:      q.Email,
		Subject: "Re: " + q.Subject,
		Body: fmt.Sprintf("%s\n\n%s\n\nYour original message:\n> %s\n\nSecureCard Support\n",
			email.Greeting("", q.Email), q.Reply, q.Message),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.IncrementReplyFailure()
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to mail query reply",
				"query_id", q.ID.String(),
				"error", err,
			)
		}
	}
}

func wrapQueryErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "query not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "query already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "query operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "query store failure")
	}
}
