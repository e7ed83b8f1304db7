// Package service owns user accounts: OTP-confirmed registration, password
// login, and admin deletion.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	otpmodels "securecard/internal/otp/models"
	otpservice "securecard/internal/otp/service"
	usermetrics "securecard/internal/user/metrics"
	"securecard/internal/user/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
	"securecard/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Delete(ctx context.Context, userID id.UserID) error
}

type OTPService interface {
	Issue(ctx context.Context, purpose otpmodels.Purpose, target string, payload otpmodels.Payload) (*otpservice.IssueResult, error)
	Verify(ctx context.Context, challengeID id.ChallengeID, code string, submitted otpmodels.Payload, commit otpservice.CommitFunc) error
}

// TokenIssuer signs access tokens for logged-in users.
type TokenIssuer interface {
	GenerateAccessToken(caller id.Caller) (string, time.Time, error)
}

// DeletionGuard decides whether caller may delete a user with targetRole and
// closes the user's open applications once they may.
type DeletionGuard interface {
	AuthorizeUserDeletion(caller id.Caller, targetRole id.Role) error
	CloseForApplicant(ctx context.Context, caller id.Caller, applicantID id.UserID) (int, error)
}

// CardRemover drops the cards of a deleted user.
type CardRemover interface {
	RemoveOwner(ctx context.Context, ownerID id.UserID) (int, error)
}

// Token is a signed access token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *models.User
}

type Service struct {
	users          Store
	otp            OTPService
	tokens         TokenIssuer
	guard          DeletionGuard
	cards          CardRemover
	adminEmails    []string
	bcryptCost     int
	dummyHash      []byte
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher audit.Publisher
	audit          *audit.Emitter
	metrics        *usermetrics.Metrics
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

func WithMetrics(m *usermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithAdminEmails lists addresses that register as admins.
func WithAdminEmails(emails []string) Option {
	return func(s *Service) {
		for _, e := range emails {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
				s.adminEmails = append(s.adminEmails, e)
			}
		}
	}
}

// WithBcryptCost lowers the hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(users Store, otp OTPService, tokens TokenIssuer, guard DeletionGuard, cards CardRemover, opts ...Option) *Service {
	s := &Service{
		users:      users,
		otp:        otp,
		tokens:     tokens,
		guard:      guard,
		cards:      cards,
		bcryptCost: bcrypt.DefaultCost,
		tx:         txcontext.Passthrough{},
	}
	for _, opt := range opts {
		opt(s)
	}
	// compared against on unknown emails so both login failures cost one hash
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("securecard-dummy-password"), s.bcryptCost)
	s.audit = audit.NewEmitter(s.logger, s.auditPublisher)
	return s
}

// StartRegistration validates form and mails a confirmation code to its
// email. No user exists until CompleteRegistration succeeds.
func (s *Service) StartRegistration(ctx context.Context, form models.RegistrationForm) (*otpservice.IssueResult, error) {
	form.Normalize()
	if err := form.Validate(requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, form.Email, form.Username); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	issued, err := s.otp.Issue(ctx, otpmodels.PurposeRegistrationConfirmation, form.Email,
		otpmodels.ForRegistration(form.Payload(string(hash))))
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementRegistrationStarted()
	return issued, nil
}

// CompleteRegistration verifies the code with the resubmitted form and
// creates the user from the form stored at issue time.
func (s *Service) CompleteRegistration(ctx context.Context, challengeID id.ChallengeID, code string, form models.RegistrationForm) (*models.User, error) {
	form.Normalize()
	var created *models.User
	err := s.otp.Verify(ctx, challengeID, code, otpmodels.ForRegistration(form.Resubmitted()),
		func(ctx context.Context, payload otpmodels.Payload) error {
			if payload.Registration == nil {
				return dErrors.New(dErrors.CodeInvariantViolation, "challenge does not confirm a registration")
			}
			u, err := models.NewUser(id.NewUserID(), *payload.Registration, s.roleFor(payload.Registration.Email), requestcontext.Now(ctx))
			if err != nil {
				return err
			}
			if err := s.users.Create(ctx, u); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return dErrors.New(dErrors.CodeConflict, "email or username already registered")
				}
				return wrapUserErr(err)
			}
			created = u
			return nil
		})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventUserRegistered, created.ID,
		"subject", created.ID,
		"role", string(created.Role),
	)
	s.metrics.IncrementRegistrationCompleted()
	return created, nil
}

// Login checks the password and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapUserErr(err)
	}
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, s.loginFailed(ctx, id.UserID{}, "unknown_email")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, s.loginFailed(ctx, u.ID, "wrong_password")
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(u.Caller())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	s.audit.Record(ctx, audit.EventUserLoggedIn, u.ID)
	s.metrics.IncrementLogin("success")
	return &Token{AccessToken: token, ExpiresAt: expiresAt, User: u}, nil
}

func (s *Service) loginFailed(ctx context.Context, userID id.UserID, reason string) error {
	s.audit.Record(ctx, audit.EventLoginFailed, userID, "reason", reason)
	s.metrics.IncrementLogin("failure")
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

// Current returns the caller's own account.
func (s *Service) Current(ctx context.Context, caller id.Caller) (*models.User, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, caller.UserID)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, caller id.Caller) ([]*models.User, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return users, nil
}

// Delete removes a non-admin user and their cards and rejects their pending
// applications. Payments keep their history.
func (s *Service) Delete(ctx context.Context, caller id.Caller, userID id.UserID) error {
	if err := caller.RequireAdmin(); err != nil {
		return err
	}
	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return wrapUserErr(err)
	}
	if err := s.guard.AuthorizeUserDeletion(caller, target.Role); err != nil {
		return err
	}

	var removed, closed int
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Delete(txCtx, userID); err != nil {
			return wrapUserErr(err)
		}
		n, err := s.guard.CloseForApplicant(txCtx, caller, userID)
		if err != nil {
			return err
		}
		closed = n
		n, err = s.cards.RemoveOwner(txCtx, userID)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, audit.EventUserDeleted, userID,
		"subject", userID,
		"actor_id", caller.UserID,
	)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "user deleted",
			"user_id", userID.String(),
			"cards_removed", removed,
			"applications_closed", closed,
		)
	}
	s.metrics.IncrementDeleted()
	return nil
}

func (s *Service) ensureAvailable(ctx context.Context, email, username string) error {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return wrapUserErr(err)
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return dErrors.New(dErrors.CodeConflict, "username already taken")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return wrapUserErr(err)
	}
	return nil
}

func (s *Service) roleFor(email string) id.Role {
	if slices.Contains(s.adminEmails, strings.ToLower(email)) {
		return id.RoleAdmin
	}
	return id.RoleUser
}

func wrapUserErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "user already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "user operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "user store failure")
	}
}
