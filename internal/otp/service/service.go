// Package service issues and verifies one-time passcodes that gate payment
// and registration confirmations. A challenge is bound to a typed payload at
// issue time; verification succeeds only for the same payload and consumes
// the challenge exactly once before running the caller's commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otpmetrics "securecard/internal/otp/metrics"
	"securecard/internal/otp/models"
	"securecard/internal/otp/store/throttle"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/email"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/sentinel"
	"securecard/pkg/requestcontext"
)

const (
	defaultTTL         = 5 * time.Minute
	defaultMaxAttempts = 3
	defaultIssueLimit  = 5
	defaultIssueWindow = 15 * time.Minute
)

type Store interface {
	Create(ctx context.Context, ch *models.Challenge) error
	FindByID(ctx context.Context, challengeID id.ChallengeID) (*models.Challenge, error)
	Execute(ctx context.Context, challengeID id.ChallengeID, fn func(*models.Challenge) error) (*models.Challenge, error)
}

// Throttle limits how many challenges one target can request per window.
type Throttle interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*throttle.Result, error)
	Reset(ctx context.Context, key string) error
}

// CommitFunc runs the confirmed operation with the payload stored at issue
// time.
type CommitFunc func(ctx context.Context, payload models.Payload) error

// IssueResult describes a freshly issued challenge. Delivered is false when
// the code could not be mailed; the challenge still exists and can be
// verified or re-issued.
type IssueResult struct {
	ChallengeID id.ChallengeID
	ExpiresAt   time.Time
	Delivered   bool
}

type Service struct {
	challenges     Store
	throttle       Throttle
	mailer         email.Sender
	ttl            time.Duration
	maxAttempts    int
	issueLimit     int
	issueWindow    time.Duration
	codeSource     io.Reader
	logger         *slog.Logger
	auditPublisher audit.Publisher
	audit          *audit.Emitter
	metrics        *otpmetrics.Metrics
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

func WithMetrics(m *otpmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTTL sets how long an issued code stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxAttempts sets how many wrong submissions fail a challenge.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithIssueLimit bounds issued challenges per target within window. A limit
// of zero disables the throttle.
func WithIssueLimit(limit int, window time.Duration) Option {
	return func(s *Service) {
		s.issueLimit = limit
		if window > 0 {
			s.issueWindow = window
		}
	}
}

// WithCodeSource replaces crypto/rand as the code source in tests.
func WithCodeSource(r io.Reader) Option {
	return func(s *Service) {
		s.codeSource = r
	}
}

func New(challenges Store, limiter Throttle, mailer email.Sender, opts ...Option) *Service {
	s := &Service{
		challenges:  challenges,
		throttle:    limiter,
		mailer:      mailer,
		ttl:         defaultTTL,
		maxAttempts: defaultMaxAttempts,
		issueLimit:  defaultIssueLimit,
		issueWindow: defaultIssueWindow,
		tracer:      otel.Tracer("securecard/otp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewEmitter(s.logger, s.auditPublisher)
	return s
}

// Issue creates a challenge for payload and mails its code to target.
func (s *Service) Issue(ctx context.Context, purpose models.Purpose, target string, payload models.Payload) (*IssueResult, error) {
	ctx, span := s.tracer.Start(ctx, "otp.issue",
		trace.WithAttributes(attribute.String("otp.purpose", string(purpose))),
	)
	defer span.End()

	target = strings.ToLower(strings.TrimSpace(target))
	now := requestcontext.Now(ctx)

	if err := s.allowIssue(ctx, purpose, target, payload.OwnerID()); err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	code, err := models.GenerateCode(s.codeSource)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	ch, err := models.NewChallenge(id.NewChallengeID(), purpose, target, code, payload, now, s.ttl, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		span.SetStatus(codes.Error, "store")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
	}
	span.SetAttributes(attribute.String("otp.challenge_id", ch.ID.String()))

	delivered := true
	if err := s.mailer.Send(ctx, codeMessage(ch, code, s.ttl)); err != nil {
		delivered = false
		s.metrics.IncrementMailFailure()
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to mail otp code",
				"challenge_id", ch.ID.String(),
				"purpose", string(purpose),
				"error", err,
			)
		}
	}

	s.audit.Record(ctx, audit.EventOTPIssued, payload.OwnerID(),
		"subject", ch.ID,
		"purpose", string(purpose),
		"delivered", fmt.Sprint(delivered),
	)
	s.metrics.IncrementIssued(string(purpose))
	return &IssueResult{
		ChallengeID: ch.ID,
		ExpiresAt:   ch.ExpiresAt,
		Delivered:   delivered,
	}, nil
}

func (s *Service) allowIssue(ctx context.Context, purpose models.Purpose, target string, userID id.UserID) error {
	if s.throttle == nil || s.issueLimit <= 0 {
		return nil
	}
	res, err := s.throttle.Allow(ctx, throttleKey(purpose, target), s.issueLimit, s.issueWindow)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "code issuance temporarily unavailable")
	}
	if !res.Allowed {
		s.metrics.IncrementThrottled()
		s.audit.Record(ctx, audit.EventOTPThrottled, userID,
			"purpose", string(purpose),
			"reason", "issue_limit",
		)
		return dErrors.New(dErrors.CodeRateLimited, "too many codes requested, try again later")
	}
	return nil
}

// Verify checks code and the resubmitted payload against the challenge. On
// success the challenge is consumed and commit runs with the stored payload.
// Wrong codes and payload mismatches count against the attempt budget.
func (s *Service) Verify(ctx context.Context, challengeID id.ChallengeID, code string, submitted models.Payload, commit CommitFunc) error {
	ctx, span := s.tracer.Start(ctx, "otp.verify",
		trace.WithAttributes(attribute.String("otp.challenge_id", challengeID.String())),
	)
	defer span.End()

	now := requestcontext.Now(ctx)
	var rejection error
	ch, err := s.challenges.Execute(ctx, challengeID, func(c *models.Challenge) error {
		rejection = nil
		if err := c.CheckUsable(now); err != nil {
			return err
		}
		switch {
		case !c.CodeMatches(code):
			c.RecordFailure()
			rejection = dErrors.New(dErrors.CodeOTPInvalid, "incorrect code")
			return nil
		case !c.Payload.Matches(submitted):
			c.RecordFailure()
			rejection = dErrors.New(dErrors.CodeOTPPayloadMismatch, "submitted details do not match the confirmed operation")
			return nil
		}
		return c.Consume()
	})
	if err != nil {
		err = wrapChallengeErr(err)
		s.metrics.IncrementVerification(string(dErrors.CodeOf(err)))
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return err
	}
	if rejection != nil {
		s.metrics.IncrementVerification(string(dErrors.CodeOf(rejection)))
		s.audit.Record(ctx, audit.EventOTPFailed, ch.Payload.OwnerID(),
			"subject", ch.ID,
			"reason", string(dErrors.CodeOf(rejection)),
			"attempts_left", fmt.Sprint(ch.RemainingAttempts()),
		)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(rejection)))
		return rejection
	}

	s.metrics.IncrementVerification("verified")
	s.audit.Record(ctx, audit.EventOTPVerified, ch.Payload.OwnerID(),
		"subject", ch.ID,
		"purpose", string(ch.Purpose),
	)
	s.resetThrottle(ctx, ch)

	if commit == nil {
		return nil
	}
	if err := commit(ctx, ch.Payload); err != nil {
		span.SetStatus(codes.Error, "commit")
		return err
	}
	return nil
}

// IsLive reports whether the challenge exists and can still be verified.
func (s *Service) IsLive(ctx context.Context, challengeID id.ChallengeID) (bool, error) {
	if challengeID.IsNil() {
		return false, nil
	}
	ch, err := s.challenges.FindByID(ctx, challengeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapChallengeErr(err)
	}
	return ch.IsLive(requestcontext.Now(ctx)), nil
}

// resetThrottle clears the issue window after a successful verification so a
// legitimate user is not locked out by earlier resends.
func (s *Service) resetThrottle(ctx context.Context, ch *models.Challenge) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Reset(ctx, throttleKey(ch.Purpose, ch.Target)); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to reset otp throttle",
			"challenge_id", ch.ID.String(),
			"error", err,
		)
	}
}

func throttleKey(purpose models.Purpose, target string) string {
	return string(purpose) + ":" + target
}

func codeMessage(ch *models.Challenge, code string, ttl time.Duration) email.Message {
	subject := "Confirm your SecureCard payment"
	action := "confirm your payment"
	if ch.Purpose == models.PurposeRegistrationConfirmation {
		subject = "Confirm your SecureCard registration"
		action = "complete your registration"
	}
	name := ""
	if ch.Payload.Registration != nil {
		name = ch.Payload.Registration.Name
	}
	body := fmt.Sprintf("%s\n\nUse the code %s to %s. It expires in %d minutes.\n\nIf you did not request this code, ignore this message.\n",
		email.Greeting(name, ch.Target), code, action, int(ttl.Minutes()))
	return email.Message{To: ch.Target, Subject: subject, Body: body}
}

func wrapChallengeErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "challenge not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "challenge is being verified concurrently")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "challenge operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "challenge store failure")
	}
}
