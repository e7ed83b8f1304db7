// Package service authorizes pending payments against the owner's cards.
//
// A resolution either rejects the payment, charges the selected card, or
// parks the payment behind a one-time passcode when the charge exceeds the
// step-up threshold. The charged amount is always computed here from the
// coupon table; callers only name a coupon code.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cardmodels "securecard/internal/card/models"
	otpmodels "securecard/internal/otp/models"
	otpservice "securecard/internal/otp/service"
	paymentmetrics "securecard/internal/payment/metrics"
	"securecard/internal/payment/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
	"securecard/pkg/requestcontext"
)

var defaultStepUpThreshold = decimal.NewFromInt(10000)

type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	ListByOwner(ctx context.Context, ownerID id.UserID, statuses ...models.Status) ([]*models.Payment, error)
	Execute(ctx context.Context, paymentID id.PaymentID, fn func(*models.Payment) error) (*models.Payment, error)
}

type CouponStore interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// CardService is the slice of the card registry the authorizer drives.
type CardService interface {
	Get(ctx context.Context, caller id.Caller, cardID id.CardID) (*cardmodels.Card, error)
	Quote(ctx context.Context, ownerID id.UserID, cardID id.CardID, amount decimal.Decimal) (decimal.Decimal, error)
	Charge(ctx context.Context, ownerID id.UserID, cardID id.CardID, paymentID id.PaymentID, amount decimal.Decimal) (*cardmodels.Card, error)
	ListTransactions(ctx context.Context, caller id.Caller, cardID id.CardID) ([]*cardmodels.Transaction, error)
}

type OTPService interface {
	Issue(ctx context.Context, purpose otpmodels.Purpose, target string, payload otpmodels.Payload) (*otpservice.IssueResult, error)
	Verify(ctx context.Context, challengeID id.ChallengeID, code string, submitted otpmodels.Payload, commit otpservice.CommitFunc) error
	IsLive(ctx context.Context, challengeID id.ChallengeID) (bool, error)
}

type Service struct {
	payments        Store
	coupons         CouponStore
	cards           CardService
	otp             OTPService
	stepUpThreshold decimal.Decimal
	tx              txcontext.Runner
	logger          *slog.Logger
	auditPublisher  audit.Publisher
	audit           *audit.Emitter
	metrics         *paymentmetrics.Metrics
	tracer          trace.Tracer
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

func WithMetrics(m *paymentmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithStepUpThreshold sets the amount above which a payment needs an OTP.
func WithStepUpThreshold(threshold decimal.Decimal) Option {
	return func(s *Service) {
		if !threshold.IsNegative() {
			s.stepUpThreshold = threshold
		}
	}
}

func New(payments Store, coupons CouponStore, cards CardService, otp OTPService, opts ...Option) *Service {
	s := &Service{
		payments:        payments,
		coupons:         coupons,
		cards:           cards,
		otp:             otp,
		stepUpThreshold: defaultStepUpThreshold,
		tx:              txcontext.Passthrough{},
		tracer:          otel.Tracer("securecard/payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewEmitter(s.logger, s.auditPublisher)
	return s
}

// Create records a pending payment for the caller. It stands in for the
// checkout system that owns payment creation.
func (s *Service) Create(ctx context.Context, caller id.Caller, orderID string, amount decimal.Decimal) (*models.Payment, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	p, err := models.NewPayment(id.NewPaymentID(), caller.UserID, orderID, amount, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, wrapPaymentErr(err)
	}
	s.audit.Record(ctx, audit.EventPaymentCreated, caller.UserID,
		"subject", p.ID,
		"amount", p.Amount,
	)
	s.metrics.IncrementCreated()
	return p, nil
}

// ListPending returns the caller's unresolved payments, including those
// waiting for an OTP.
func (s *Service) ListPending(ctx context.Context, caller id.Caller) ([]*models.Payment, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	out, err := s.payments.ListByOwner(ctx, caller.UserID, models.StatusPending, models.StatusOtpRequired)
	if err != nil {
		return nil, wrapPaymentErr(err)
	}
	return out, nil
}

// Quote prices a payment with couponCode. Unlike Resolve, an unusable coupon
// is an error here.
func (s *Service) Quote(ctx context.Context, caller id.Caller, paymentID id.PaymentID, couponCode string) (*models.Quote, error) {
	p, err := s.owned(ctx, caller, paymentID)
	if err != nil {
		return nil, err
	}
	if models.NormalizeCouponCode(couponCode) == "" {
		return &models.Quote{Original: p.Amount, Discount: decimal.Zero, Amount: p.Amount}, nil
	}
	quote, err := s.price(ctx, p.Amount, couponCode)
	if err != nil {
		return nil, err
	}
	if !quote.CouponApplied {
		return nil, dErrors.New(dErrors.CodeInvalidCoupon, "coupon code is not valid")
	}
	return quote, nil
}

// Resolve applies the owner's decision to a pending payment.
func (s *Service) Resolve(ctx context.Context, caller id.Caller, req models.ResolveRequest) (*models.ResolveResult, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.metrics.ObserveResolve(start)

	ctx, span := s.tracer.Start(ctx, "payment.resolve",
		trace.WithAttributes(
			attribute.String("payment.id", req.PaymentID.String()),
			attribute.String("payment.action", string(req.Action)),
		),
	)
	defer span.End()

	var (
		result *models.ResolveResult
		err    error
	)
	switch req.Action {
	case models.ActionRejected:
		result, err = s.reject(ctx, caller, req.PaymentID)
	case models.ActionPaid:
		result, err = s.pay(ctx, caller, req)
	default:
		err = dErrors.New(dErrors.CodeValidation, "action must be paid or rejected")
	}
	if err != nil {
		s.recordDecline(ctx, caller, req.PaymentID, req.CardID, err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.outcome", string(result.Outcome)))
	s.metrics.IncrementResolution(string(result.Outcome))
	return result, nil
}

func (s *Service) reject(ctx context.Context, caller id.Caller, paymentID id.PaymentID) (*models.ResolveResult, error) {
	now := requestcontext.Now(ctx)
	p, err := s.payments.Execute(ctx, paymentID, func(p *models.Payment) error {
		if !caller.Owns(p.OwnerID) {
			return errForbidden
		}
		if err := p.CanResolve(); err != nil {
			return err
		}
		p.MarkRejected(now)
		return nil
	})
	if err != nil {
		return nil, wrapPaymentErr(err)
	}
	s.audit.Record(ctx, audit.EventPaymentRejected, p.OwnerID,
		"subject", p.ID,
		"decision", string(models.StatusRejected),
	)
	return &models.ResolveResult{Payment: p, Outcome: models.OutcomeRejected}, nil
}

// pay runs under the payment lock: price, check the card, then either charge
// it or issue a challenge. A payment already waiting on a live challenge is
// not re-priced.
func (s *Service) pay(ctx context.Context, caller id.Caller, req models.ResolveRequest) (*models.ResolveResult, error) {
	if req.CardID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "card required")
	}
	now := requestcontext.Now(ctx)
	result := &models.ResolveResult{}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.payments.Execute(txCtx, req.PaymentID, func(p *models.Payment) error {
			if !caller.Owns(p.OwnerID) {
				return errForbidden
			}
			if err := p.CanResolve(); err != nil {
				return err
			}
			if p.Status == models.StatusOtpRequired {
				live, err := s.otp.IsLive(txCtx, p.ChallengeID)
				if err != nil {
					return err
				}
				if live {
					return dErrors.New(dErrors.CodeConflict, "payment is awaiting otp confirmation")
				}
			}

			quote, err := s.price(txCtx, p.Amount, req.CouponCode)
			if err != nil {
				return err
			}
			if req.ExpectedAmount != nil && !req.ExpectedAmount.Equal(quote.Amount) {
				return dErrors.New(dErrors.CodeValidation, "amount does not match the payable amount")
			}
			if err := s.checkCard(txCtx, caller, p.OwnerID, req.CardID, quote.Amount); err != nil {
				return err
			}

			result.Amount = quote.Amount
			result.CouponRejected = quote.CouponCode == "" && models.NormalizeCouponCode(req.CouponCode) != ""

			if quote.Amount.GreaterThan(s.stepUpThreshold) {
				issued, err := s.otp.Issue(txCtx, otpmodels.PurposePaymentConfirmation, caller.Email,
					otpmodels.ForPayment(otpmodels.PaymentPayload{
						PaymentID:  p.ID,
						OwnerID:    p.OwnerID,
						CardID:     req.CardID,
						Amount:     quote.Amount,
						CouponCode: models.NormalizeCouponCode(req.CouponCode),
						Action:     string(models.ActionPaid),
					}))
				if err != nil {
					return err
				}
				p.MarkOtpRequired(req.CardID, quote.Amount, quote.CouponCode, issued.ChallengeID)
				result.Outcome = models.OutcomeOtpRequired
				result.ChallengeID = issued.ChallengeID
				result.ExpiresAt = issued.ExpiresAt
				result.CodeDelivered = issued.Delivered
				return nil
			}

			if quote.Amount.IsPositive() {
				if _, err := s.cards.Charge(txCtx, p.OwnerID, req.CardID, p.ID, quote.Amount); err != nil {
					return err
				}
			}
			p.MarkPaid(req.CardID, quote.Amount, quote.CouponCode, now)
			result.Outcome = models.OutcomePaid
			return nil
		})
		if err != nil {
			return wrapPaymentErr(err)
		}
		result.Payment = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := result.Payment
	if result.Outcome == models.OutcomeOtpRequired {
		s.audit.Record(ctx, audit.EventPaymentOTPRequired, p.OwnerID,
			"subject", p.ID,
			"amount", p.ChargedAmount,
			"challenge_id", p.ChallengeID,
		)
		return result, nil
	}
	s.audit.Record(ctx, audit.EventPaymentPaid, p.OwnerID,
		"subject", p.ID,
		"decision", string(models.StatusPaid),
		"amount", p.ChargedAmount,
		"card_id", p.CardID,
	)
	return result, nil
}

// VerifyOTP confirms a payment parked behind a challenge. The resubmitted
// parameters must equal the ones bound at issue time; the charge then uses
// the bound parameters, re-checked against the locked payment and card.
func (s *Service) VerifyOTP(ctx context.Context, caller id.Caller, req models.VerifyRequest) (*models.Payment, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "payment.verify",
		trace.WithAttributes(
			attribute.String("payment.id", req.PaymentID.String()),
			attribute.String("otp.challenge_id", req.ChallengeID.String()),
		),
	)
	defer span.End()

	current, err := s.owned(ctx, caller, req.PaymentID)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if err := current.CanResolve(); err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if current.Status != models.StatusOtpRequired || current.ChallengeID != req.ChallengeID {
		err := dErrors.New(dErrors.CodeConflict, "payment is not awaiting this confirmation")
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	submitted := otpmodels.ForPayment(otpmodels.PaymentPayload{
		PaymentID:  req.PaymentID,
		OwnerID:    caller.UserID,
		CardID:     req.CardID,
		Amount:     req.Amount,
		CouponCode: models.NormalizeCouponCode(req.CouponCode),
		Action:     string(req.Action),
	})

	var paid *models.Payment
	err = s.otp.Verify(ctx, req.ChallengeID, req.Code, submitted, func(ctx context.Context, payload otpmodels.Payload) error {
		bound := payload.Payment
		if bound == nil || bound.Action != string(models.ActionPaid) {
			return dErrors.New(dErrors.CodeInvariantViolation, "challenge does not confirm a payment")
		}
		p, err := s.commitVerified(ctx, req.ChallengeID, bound)
		if err != nil {
			return err
		}
		paid = p
		return nil
	})
	if err != nil {
		s.recordDecline(ctx, caller, req.PaymentID, req.CardID, err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.audit.Record(ctx, audit.EventPaymentPaid, paid.OwnerID,
		"subject", paid.ID,
		"decision", string(models.StatusPaid),
		"amount", paid.ChargedAmount,
		"card_id", paid.CardID,
		"challenge_id", paid.ChallengeID,
	)
	s.metrics.IncrementResolution(string(models.OutcomePaid))
	return paid, nil
}

func (s *Service) commitVerified(ctx context.Context, challengeID id.ChallengeID, bound *otpmodels.PaymentPayload) (*models.Payment, error) {
	now := requestcontext.Now(ctx)
	var paid *models.Payment
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.payments.Execute(txCtx, bound.PaymentID, func(p *models.Payment) error {
			if err := p.CanResolve(); err != nil {
				return err
			}
			if p.Status != models.StatusOtpRequired || p.ChallengeID != challengeID {
				return dErrors.New(dErrors.CodeConflict, "payment is not awaiting this confirmation")
			}
			if bound.Amount.IsPositive() {
				if _, err := s.cards.Charge(txCtx, p.OwnerID, bound.CardID, p.ID, bound.Amount); err != nil {
					return err
				}
			}
			p.MarkPaid(bound.CardID, bound.Amount, p.CouponCode, now)
			return nil
		})
		if err != nil {
			return wrapPaymentErr(err)
		}
		paid = updated
		return nil
	})
	return paid, err
}

// ListTransactions returns the history of one of the caller's cards.
func (s *Service) ListTransactions(ctx context.Context, caller id.Caller, cardID id.CardID) ([]*cardmodels.Transaction, error) {
	return s.cards.ListTransactions(ctx, caller, cardID)
}

func (s *Service) owned(ctx context.Context, caller id.Caller, paymentID id.PaymentID) (*models.Payment, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, wrapPaymentErr(err)
	}
	if !caller.Owns(p.OwnerID) {
		return nil, errForbidden
	}
	return p, nil
}

// price computes the payable amount. An unknown or inactive coupon leaves the
// amount unchanged and the returned quote has no coupon.
func (s *Service) price(ctx context.Context, amount decimal.Decimal, couponCode string) (*models.Quote, error) {
	quote := &models.Quote{Original: amount, Discount: decimal.Zero, Amount: amount}
	code := models.NormalizeCouponCode(couponCode)
	if code == "" {
		return quote, nil
	}
	coupon, err := s.coupons.FindByCode(ctx, code)
	if errors.Is(err, sentinel.ErrNotFound) {
		return quote, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up coupon")
	}
	if !coupon.Active {
		return quote, nil
	}
	quote.Discount = coupon.Discount(amount)
	quote.Amount = coupon.Apply(amount)
	quote.CouponCode = coupon.Code
	quote.CouponApplied = true
	return quote, nil
}

// checkCard runs the charge checks without mutating the card. A fully
// discounted payment charges nothing but still needs a usable card.
func (s *Service) checkCard(ctx context.Context, caller id.Caller, ownerID id.UserID, cardID id.CardID, amount decimal.Decimal) error {
	if amount.IsPositive() {
		_, err := s.cards.Quote(ctx, ownerID, cardID, amount)
		return err
	}
	card, err := s.cards.Get(ctx, caller, cardID)
	if err != nil {
		return err
	}
	if card.OwnerID != ownerID {
		return dErrors.New(dErrors.CodeForbidden, "card belongs to another user")
	}
	if !card.IsUsable() {
		return dErrors.New(dErrors.CodeForbidden, "card cannot be used for payments")
	}
	return nil
}

// recordDecline audits charges the selected card refused so the caller can
// be steered to another card.
func (s *Service) recordDecline(ctx context.Context, caller id.Caller, paymentID id.PaymentID, cardID id.CardID, err error) {
	code := dErrors.CodeOf(err)
	if code != dErrors.CodeInsufficientFunds && code != dErrors.CodeLimitExceeded {
		return
	}
	s.metrics.IncrementDecline(string(code))
	s.audit.Record(ctx, audit.EventPaymentDeclined, caller.UserID,
		"subject", paymentID,
		"card_id", cardID,
		"reason", string(code),
	)
}

var errForbidden = dErrors.New(dErrors.CodeForbidden, "payment belongs to another user")

func wrapPaymentErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "payment not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "payment already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "payment operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "payment store failure")
	}
}
