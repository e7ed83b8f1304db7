// Package service implements the card registry: card issuance, balance
// changes under a per-card lock, tier upgrades, one-way deactivation and
// deletion.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cardmetrics "securecard/internal/card/metrics"
	"securecard/internal/card/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
	"securecard/pkg/requestcontext"
)

// maxNumberAttempts bounds retries when a generated card number collides.
const maxNumberAttempts = 5

type Store interface {
	Create(ctx context.Context, card *models.Card) error
	FindByID(ctx context.Context, cardID id.CardID) (*models.Card, error)
	FindByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.Card, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Card, error)
	Execute(ctx context.Context, cardID id.CardID, fn func(*models.Card) error) (*models.Card, error)
	Delete(ctx context.Context, cardID id.CardID) error
	DeleteByOwner(ctx context.Context, ownerID id.UserID) (int, error)
}

type TransactionStore interface {
	AppendTransaction(ctx context.Context, txn *models.Transaction) error
	ListTransactions(ctx context.Context, cardID id.CardID) ([]*models.Transaction, error)
}

// Service is the card registry.
type Service struct {
	cards          Store
	transactions   TransactionStore
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher audit.Publisher
	audit          *audit.Emitter
	metrics        *cardmetrics.Metrics
	numberSource   io.Reader
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

func WithMetrics(m *cardmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxRunner sets the transactional boundary used when a balance change and
// its transaction record must commit together.
func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithNumberSource replaces crypto/rand as the card number source in tests.
func WithNumberSource(r io.Reader) Option {
	return func(s *Service) {
		s.numberSource = r
	}
}

func New(cards Store, transactions TransactionStore, opts ...Option) *Service {
	s := &Service{
		cards:        cards,
		transactions: transactions,
		tx:           txcontext.Passthrough{},
		tracer:       otel.Tracer("securecard/card"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewEmitter(s.logger, s.auditPublisher)
	return s
}

// CreateFromApplication issues an active card for an accepted application.
func (s *Service) CreateFromApplication(ctx context.Context, app models.Application) (*models.Card, error) {
	if app.Status != models.StatusAccepted {
		return nil, dErrors.New(dErrors.CodeValidation, "card can only be created from an accepted application")
	}
	if _, err := s.cards.FindByApplication(ctx, app.ID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "application already has a card")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapCardErr(err)
	}
	now := requestcontext.Now(ctx)

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := models.GenerateNumber(app.Category, s.numberSource)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate card number")
		}
		card, err := models.NewCard(id.NewCardID(), app.ApplicantID, app.ID, number, app.Category, app.Tier, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return nil, dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return nil, err
		}

		err = s.cards.Create(ctx, card)
		switch {
		case err == nil:
			s.audit.Record(ctx, audit.EventCardCreated, card.OwnerID,
				"subject", card.ID,
				"application_id", app.ID,
				"category", string(card.Category),
				"tier", string(card.Tier),
			)
			s.metrics.IncrementCreated()
			return card, nil
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeConflict, "application already has a card")
		case errors.Is(err, sentinel.ErrConflict):
			continue
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create card")
		}
	}
	return nil, dErrors.New(dErrors.CodeInternal, "failed to allocate a unique card number")
}

// Get returns a card visible to caller: its owner or an admin.
func (s *Service) Get(ctx context.Context, caller id.Caller, cardID id.CardID) (*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return nil, wrapCardErr(err)
	}
	if !caller.Owns(card.OwnerID) && !caller.IsAdmin() {
		return nil, errForbidden
	}
	return card, nil
}

func (s *Service) ListByOwner(ctx context.Context, caller id.Caller) ([]*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	return s.listByOwner(ctx, caller.UserID)
}

// ListActiveByOwner lists the cards the caller can pay with.
func (s *Service) ListActiveByOwner(ctx context.Context, caller id.Caller) ([]*models.Card, error) {
	cards, err := s.ListByOwner(ctx, caller)
	if err != nil {
		return nil, err
	}
	active := make([]*models.Card, 0, len(cards))
	for _, c := range cards {
		if c.IsUsable() {
			active = append(active, c)
		}
	}
	return active, nil
}

// ListForUser is the admin view of another user's cards.
func (s *Service) ListForUser(ctx context.Context, caller id.Caller, userID id.UserID) ([]*models.Card, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.listByOwner(ctx, userID)
}

func (s *Service) listByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Card, error) {
	cards, err := s.cards.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cards")
	}
	return cards, nil
}

// UpdateBalance replaces the balance of the caller's card.
func (s *Service) UpdateBalance(ctx context.Context, caller id.Caller, cardID id.CardID, balance decimal.Decimal) (*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var previous decimal.Decimal

	card, err := s.mutateBalance(ctx, cardID, models.TransactionAdjustment, id.PaymentID{},
		func(c *models.Card) (decimal.Decimal, decimal.Decimal, error) {
			if err := requireOwnerAndUsable(caller.UserID, c); err != nil {
				return decimal.Zero, decimal.Zero, err
			}
			if err := c.CheckBalance(balance); err != nil {
				return decimal.Zero, decimal.Zero, err
			}
			previous = c.Balance
			return balance, balance.Sub(c.Balance).Abs(), nil
		}, now)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.EventBalanceUpdated, card.OwnerID,
		"subject", card.ID,
		"amount", card.Balance,
		"previous_balance", previous,
	)
	return card, nil
}

// Deposit adds funds to the caller's debit card.
func (s *Service) Deposit(ctx context.Context, caller id.Caller, cardID id.CardID, amount decimal.Decimal) (*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	card, err := s.mutateBalance(ctx, cardID, models.TransactionDeposit, id.PaymentID{},
		func(c *models.Card) (decimal.Decimal, decimal.Decimal, error) {
			if err := requireOwnerAndUsable(caller.UserID, c); err != nil {
				return decimal.Zero, decimal.Zero, err
			}
			next, err := c.BalanceAfterDeposit(amount)
			return next, amount, err
		}, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventCardDeposit, card.OwnerID,
		"subject", card.ID,
		"amount", amount,
	)
	return card, nil
}

// PayBill repays part or all of the caller's credit card debt.
func (s *Service) PayBill(ctx context.Context, caller id.Caller, cardID id.CardID, amount decimal.Decimal) (*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	card, err := s.mutateBalance(ctx, cardID, models.TransactionBillPayment, id.PaymentID{},
		func(c *models.Card) (decimal.Decimal, decimal.Decimal, error) {
			if err := requireOwnerAndUsable(caller.UserID, c); err != nil {
				return decimal.Zero, decimal.Zero, err
			}
			next, err := c.BalanceAfterBillPayment(amount)
			return next, amount, err
		}, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventCardBillPaid, card.OwnerID,
		"subject", card.ID,
		"amount", amount,
	)
	return card, nil
}

// Quote runs the Charge checks without mutating the card and returns the
// balance the charge would leave.
func (s *Service) Quote(ctx context.Context, ownerID id.UserID, cardID id.CardID, amount decimal.Decimal) (decimal.Decimal, error) {
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return decimal.Zero, wrapCardErr(err)
	}
	if err := requireOwnerAndPayable(ownerID, card); err != nil {
		return decimal.Zero, err
	}
	next, err := card.BalanceAfterCharge(amount)
	if err != nil {
		s.metrics.IncrementChargeRejected(string(dErrors.CodeOf(err)))
		return decimal.Zero, err
	}
	return next, nil
}

// Charge debits a purchase of amount from the card under its lock and records
// the transaction against paymentID. Owner, activity and the balance invariant
// are checked against the locked row.
func (s *Service) Charge(ctx context.Context, ownerID id.UserID, cardID id.CardID, paymentID id.PaymentID, amount decimal.Decimal) (*models.Card, error) {
	start := time.Now()
	defer s.metrics.ObserveCharge(start)

	ctx, span := s.tracer.Start(ctx, "card.charge",
		trace.WithAttributes(
			attribute.String("card.id", cardID.String()),
			attribute.String("payment.id", paymentID.String()),
		),
	)
	defer span.End()

	card, err := s.mutateBalance(ctx, cardID, models.TransactionPurchase, paymentID,
		func(c *models.Card) (decimal.Decimal, decimal.Decimal, error) {
			if err := requireOwnerAndPayable(ownerID, c); err != nil {
				return decimal.Zero, decimal.Zero, err
			}
			next, err := c.BalanceAfterCharge(amount)
			return next, amount, err
		}, requestcontext.Now(ctx))
	if err != nil {
		code := dErrors.CodeOf(err)
		if code == dErrors.CodeInsufficientFunds || code == dErrors.CodeLimitExceeded {
			s.metrics.IncrementChargeRejected(string(code))
		}
		span.SetStatus(codes.Error, string(code))
		return nil, err
	}
	span.SetAttributes(attribute.String("card.balance_after", card.Balance.String()))
	return card, nil
}

// mutateBalance applies compute under the card lock and records the change as
// a transaction in the same transactional boundary. compute returns the new
// balance and the transaction amount.
func (s *Service) mutateBalance(
	ctx context.Context,
	cardID id.CardID,
	kind models.TransactionKind,
	paymentID id.PaymentID,
	compute func(*models.Card) (decimal.Decimal, decimal.Decimal, error),
	now time.Time,
) (*models.Card, error) {
	var updated *models.Card
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var amount decimal.Decimal
		card, err := s.cards.Execute(txCtx, cardID, func(c *models.Card) error {
			next, delta, err := compute(c)
			if err != nil {
				return err
			}
			amount = delta
			c.ApplyBalance(next, now)
			return nil
		})
		if err != nil {
			return wrapCardErr(err)
		}
		txn := models.NewTransaction(card, paymentID, kind, amount, now)
		if err := s.transactions.AppendTransaction(txCtx, txn); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record card transaction")
		}
		updated = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementBalanceChange(string(kind))
	return updated, nil
}

// ChangeTier upgrades the caller's card along the tier order.
func (s *Service) ChangeTier(ctx context.Context, caller id.Caller, cardID id.CardID, target models.Tier) (*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var from models.Tier
	card, err := s.cards.Execute(ctx, cardID, func(c *models.Card) error {
		if !caller.Owns(c.OwnerID) {
			return errForbidden
		}
		if !c.IsUsable() {
			return errInactive
		}
		if err := c.CanChangeTier(target); err != nil {
			return err
		}
		from = c.Tier
		c.ApplyTier(target, now)
		return nil
	})
	if err != nil {
		return nil, wrapCardErr(err)
	}
	s.audit.Record(ctx, audit.EventCardTierChanged, card.OwnerID,
		"subject", card.ID,
		"from_tier", string(from),
		"to_tier", string(target),
	)
	return card, nil
}

// Deactivate moves a card to Inactive. Owners and admins may deactivate; a
// second call reports AlreadyInactive.
func (s *Service) Deactivate(ctx context.Context, caller id.Caller, cardID id.CardID) (*models.Card, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	card, err := s.cards.Execute(ctx, cardID, func(c *models.Card) error {
		if !caller.Owns(c.OwnerID) && !caller.IsAdmin() {
			return errForbidden
		}
		return c.Deactivate(now)
	})
	if err != nil {
		return nil, wrapCardErr(err)
	}
	attributes := []any{"subject", card.ID}
	if !caller.Owns(card.OwnerID) {
		attributes = append(attributes, "actor_id", caller.UserID)
	}
	s.audit.Record(ctx, audit.EventCardDeactivated, card.OwnerID, attributes...)
	s.metrics.IncrementDeactivated()
	return card, nil
}

// Delete removes the caller's card. Later lookups report NotFound.
func (s *Service) Delete(ctx context.Context, caller id.Caller, cardID id.CardID) error {
	if err := caller.RequireAuthenticated(); err != nil {
		return err
	}
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return wrapCardErr(err)
	}
	if !caller.Owns(card.OwnerID) {
		return errForbidden
	}
	if err := s.cards.Delete(ctx, cardID); err != nil {
		return wrapCardErr(err)
	}
	s.audit.Record(ctx, audit.EventCardDeleted, card.OwnerID,
		"subject", card.ID,
	)
	return nil
}

// RemoveOwner deletes every card of a user being deleted.
func (s *Service) RemoveOwner(ctx context.Context, ownerID id.UserID) (int, error) {
	n, err := s.cards.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove user cards")
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed cards of deleted user",
			"user_id", ownerID.String(),
			"count", n,
		)
	}
	return n, nil
}

// ListTransactions returns the card's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, caller id.Caller, cardID id.CardID) ([]*models.Transaction, error) {
	if _, err := s.Get(ctx, caller, cardID); err != nil {
		return nil, err
	}
	txns, err := s.transactions.ListTransactions(ctx, cardID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list card transactions")
	}
	return txns, nil
}

var (
	errForbidden  = dErrors.New(dErrors.CodeForbidden, "card belongs to another user")
	errInactive   = dErrors.New(dErrors.CodeConflict, "card is not active")
	errNotPayable = dErrors.New(dErrors.CodeForbidden, "card cannot be used for payments")
)

// requireOwnerAndUsable guards the owner's own balance operations.
func requireOwnerAndUsable(ownerID id.UserID, c *models.Card) error {
	if ownerID.IsNil() || c.OwnerID != ownerID {
		return errForbidden
	}
	if !c.IsUsable() {
		return errInactive
	}
	return nil
}

// requireOwnerAndPayable guards purchases. An inactive card is refused the
// same way as a foreign one.
func requireOwnerAndPayable(ownerID id.UserID, c *models.Card) error {
	if ownerID.IsNil() || c.OwnerID != ownerID {
		return errForbidden
	}
	if !c.IsUsable() {
		return errNotPayable
	}
	return nil
}

// wrapCardErr translates store sentinels. Domain errors pass through.
func wrapCardErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "card not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "card operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "card store failure")
	}
}
