// Package service implements the card application workflow. Admin decisions
// move an application out of Pending exactly once; acceptance issues the card
// in the same transaction.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appmetrics "securecard/internal/application/metrics"
	"securecard/internal/application/models"
	cardmodels "securecard/internal/card/models"
	usermodels "securecard/internal/user/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
	"securecard/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Application, error)
	ListByApplicant(ctx context.Context, applicantID id.UserID) ([]*models.Application, error)
	Execute(ctx context.Context, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error)
}

// CardIssuer creates the card for an accepted application.
type CardIssuer interface {
	CreateFromApplication(ctx context.Context, app cardmodels.Application) (*cardmodels.Card, error)
}

// ApplicantDirectory confirms an applicant still has an account.
type ApplicantDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

type Service struct {
	applications   Store
	cards          CardIssuer
	applicants     ApplicantDirectory
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher audit.Publisher
	audit          *audit.Emitter
	metrics        *appmetrics.Metrics
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

func WithMetrics(m *appmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithApplicantDirectory makes Submit and Accept refuse applicants whose
// account has been deleted.
func WithApplicantDirectory(d ApplicantDirectory) Option {
	return func(s *Service) {
		s.applicants = d
	}
}

func New(applications Store, cards CardIssuer, opts ...Option) *Service {
	s := &Service{
		applications: applications,
		cards:        cards,
		tx:           txcontext.Passthrough{},
		tracer:       otel.Tracer("securecard/application"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewEmitter(s.logger, s.auditPublisher)
	return s
}

// Submit stores a new pending application for the caller.
func (s *Service) Submit(ctx context.Context, caller id.Caller, sub models.Submission) (*models.Application, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	if err := s.requireApplicant(ctx, caller.UserID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return nil, err
	}
	app, err := models.NewApplication(id.NewApplicationID(), caller.UserID, sub, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.applications.Create(ctx, app); err != nil {
		return nil, wrapApplicationErr(err)
	}
	s.audit.Record(ctx, audit.EventApplicationSubmitted, caller.UserID,
		"subject", app.ID,
		"category", string(app.Category),
		"tier", string(app.Tier),
	)
	s.metrics.IncrementSubmitted()
	return app, nil
}

// ListPending is the admin review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, caller id.Caller) ([]*models.Application, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	apps, err := s.applications.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, wrapApplicationErr(err)
	}
	return apps, nil
}

func (s *Service) ListMine(ctx context.Context, caller id.Caller) ([]*models.Application, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	apps, err := s.applications.ListByApplicant(ctx, caller.UserID)
	if err != nil {
		return nil, wrapApplicationErr(err)
	}
	return apps, nil
}

// Get returns an application to its applicant or an admin.
func (s *Service) Get(ctx context.Context, caller id.Caller, appID id.ApplicationID) (*models.Application, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	app, err := s.applications.FindByID(ctx, appID)
	if err != nil {
		return nil, wrapApplicationErr(err)
	}
	if !caller.Owns(app.ApplicantID) && !caller.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "application belongs to another user")
	}
	return app, nil
}

// Accept moves a pending application to Accepted and issues its card. Both
// happen under the application lock in one transaction: if the card cannot be
// created the application stays Pending.
func (s *Service) Accept(ctx context.Context, caller id.Caller, appID id.ApplicationID) (*models.Application, *cardmodels.Card, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, nil, err
	}
	ctx, span := s.tracer.Start(ctx, "application.accept",
		trace.WithAttributes(attribute.String("application.id", appID.String())),
	)
	defer span.End()

	now := requestcontext.Now(ctx)
	var (
		app  *models.Application
		card *cardmodels.Card
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.applications.Execute(txCtx, appID, func(a *models.Application) error {
			if err := a.CanDecide(); err != nil {
				return err
			}
			if err := s.requireApplicant(txCtx, a.ApplicantID); err != nil {
				return err
			}
			issued, err := s.cards.CreateFromApplication(txCtx, a.AcceptedView())
			if err != nil {
				return err
			}
			a.ApplyAccept(issued.ID, caller.UserID, now)
			card = issued
			return nil
		})
		if err != nil {
			return wrapApplicationErr(err)
		}
		app = updated
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("card.id", card.ID.String()))

	s.audit.Record(ctx, audit.EventApplicationAccepted, app.ApplicantID,
		"subject", app.ID,
		"actor_id", caller.UserID,
		"decision", string(models.StatusAccepted),
		"card_id", card.ID,
	)
	s.metrics.IncrementDecision(string(models.StatusAccepted))
	return app, card, nil
}

// Reject moves a pending application to Rejected. No card is created.
func (s *Service) Reject(ctx context.Context, caller id.Caller, appID id.ApplicationID) (*models.Application, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	app, err := s.applications.Execute(ctx, appID, func(a *models.Application) error {
		if err := a.CanDecide(); err != nil {
			return err
		}
		a.ApplyReject(caller.UserID, now)
		return nil
	})
	if err != nil {
		return nil, wrapApplicationErr(err)
	}
	s.audit.Record(ctx, audit.EventApplicationRejected, app.ApplicantID,
		"subject", app.ID,
		"actor_id", caller.UserID,
		"decision", string(models.StatusRejected),
	)
	s.metrics.IncrementDecision(string(models.StatusRejected))
	return app, nil
}

// CloseForApplicant rejects the pending applications of a user who is being
// deleted and returns how many it closed. Applications decided concurrently
// are left as they are.
func (s *Service) CloseForApplicant(ctx context.Context, caller id.Caller, applicantID id.UserID) (int, error) {
	if err := caller.RequireAdmin(); err != nil {
		return 0, err
	}
	apps, err := s.applications.ListByApplicant(ctx, applicantID)
	if err != nil {
		return 0, wrapApplicationErr(err)
	}
	now := requestcontext.Now(ctx)
	closed := 0
	for _, app := range apps {
		if app.Status != models.StatusPending {
			continue
		}
		_, err := s.applications.Execute(ctx, app.ID, func(a *models.Application) error {
			if err := a.CanDecide(); err != nil {
				return err
			}
			a.ApplyReject(caller.UserID, now)
			return nil
		})
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			continue
		}
		if err != nil {
			return closed, wrapApplicationErr(err)
		}
		closed++
		s.audit.Record(ctx, audit.EventApplicationRejected, applicantID,
			"subject", app.ID,
			"actor_id", caller.UserID,
			"decision", string(models.StatusRejected),
			"reason", "applicant_deleted",
		)
		s.metrics.IncrementDecision(string(models.StatusRejected))
	}
	return closed, nil
}

func (s *Service) requireApplicant(ctx context.Context, applicantID id.UserID) error {
	if s.applicants == nil {
		return nil
	}
	_, err := s.applicants.FindByID(ctx, applicantID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "applicant no longer exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up applicant")
	}
}

// AuthorizeUserDeletion guards user deletion: only admins delete users and
// admin accounts cannot be deleted.
func (s *Service) AuthorizeUserDeletion(caller id.Caller, targetRole id.Role) error {
	if err := caller.RequireAdmin(); err != nil {
		return err
	}
	if targetRole == id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin accounts cannot be deleted")
	}
	return nil
}

func wrapApplicationErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "application operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "application store failure")
	}
}
