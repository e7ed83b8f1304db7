package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusOtpRequired Status = "otp_required"
	StatusPaid        Status = "paid"
	StatusRejected    Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// Action is the owner's decision on a pending payment.
type Action string

const (
	ActionPaid     Action = "paid"
	ActionRejected Action = "rejected"
)

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if a != ActionPaid && a != ActionRejected {
		return "", dErrors.New(dErrors.CodeValidation, "action must be paid or rejected")
	}
	return a, nil
}

// MaxAmountScale is the number of decimal places money amounts may carry.
const MaxAmountScale = 2

// ValidateAmount requires a positive amount with at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Round(MaxAmountScale)) {
		return dErrors.New(dErrors.CodeValidation, "amounts may have at most two decimal places")
	}
	return nil
}

// Payment is a checkout request awaiting the owner's decision.
//
// Invariants:
//   - Amount > 0 and never changes
//   - Paid and Rejected are terminal
//   - ChargedAmount and CardID are set iff Status is Paid or OtpRequired
//   - ChallengeID is set iff Status is OtpRequired, or Paid via a challenge
type Payment struct {
	ID            id.PaymentID    `json:"id"`
	OwnerID       id.UserID       `json:"owner_id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	CardID        id.CardID       `json:"card_id"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	CouponCode    string          `json:"coupon_code"`
	ChallengeID   id.ChallengeID  `json:"challenge_id"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

func NewPayment(paymentID id.PaymentID, ownerID id.UserID, orderID string, amount decimal.Decimal, now time.Time) (*Payment, error) {
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payment owner is required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "order id is required")
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	return &Payment{
		ID:        paymentID,
		OwnerID:   ownerID,
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
	}, nil
}

// CanResolve rejects decisions on terminal payments.
func (p *Payment) CanResolve() error {
	if p.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "payment already "+string(p.Status))
	}
	return nil
}

func (p *Payment) MarkRejected(now time.Time) {
	p.Status = StatusRejected
	p.ResolvedAt = &now
}

// MarkOtpRequired parks the payment until the challenge is verified.
func (p *Payment) MarkOtpRequired(cardID id.CardID, amount decimal.Decimal, couponCode string, challengeID id.ChallengeID) {
	p.Status = StatusOtpRequired
	p.CardID = cardID
	p.ChargedAmount = amount
	p.CouponCode = couponCode
	p.ChallengeID = challengeID
}

func (p *Payment) MarkPaid(cardID id.CardID, amount decimal.Decimal, couponCode string, now time.Time) {
	p.Status = StatusPaid
	p.CardID = cardID
	p.ChargedAmount = amount
	p.CouponCode = couponCode
	p.ResolvedAt = &now
}
