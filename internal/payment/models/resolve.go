package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "securecard/pkg/domain"
)

// Outcome is what a resolution did. OtpRequired is a normal result, not an
// error.
type Outcome string

const (
	OutcomePaid        Outcome = "paid"
	OutcomeRejected    Outcome = "rejected"
	OutcomeOtpRequired Outcome = "otp_required"
)

// ResolveRequest is the owner's decision on a payment. ExpectedAmount, when
// set, is only compared with the server-computed amount.
type ResolveRequest struct {
	PaymentID      id.PaymentID
	Action         Action
	CardID         id.CardID
	CouponCode     string
	ExpectedAmount *decimal.Decimal
}

type ResolveResult struct {
	Payment        *Payment
	Outcome        Outcome
	Amount         decimal.Decimal
	CouponRejected bool
	ChallengeID    id.ChallengeID
	ExpiresAt      time.Time
	CodeDelivered  bool
}

// VerifyRequest resubmits the payment parameters with the code. They must
// equal the ones bound to the challenge.
type VerifyRequest struct {
	ChallengeID id.ChallengeID
	Code        string
	PaymentID   id.PaymentID
	CardID      id.CardID
	Amount      decimal.Decimal
	CouponCode  string
	Action      Action
}
