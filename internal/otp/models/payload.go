package models

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

// PaymentPayload binds a challenge to one payment resolution.
type PaymentPayload struct {
	PaymentID  id.PaymentID    `json:"payment_id"`
	OwnerID    id.UserID       `json:"owner_id"`
	CardID     id.CardID       `json:"card_id"`
	Amount     decimal.Decimal `json:"amount"`
	CouponCode string          `json:"coupon_code"`
	Action     string          `json:"action"`
}

func (p *PaymentPayload) matches(other *PaymentPayload) bool {
	return p.PaymentID == other.PaymentID &&
		p.OwnerID == other.OwnerID &&
		p.CardID == other.CardID &&
		p.Amount.Equal(other.Amount) &&
		p.CouponCode == other.CouponCode &&
		p.Action == other.Action
}

// RegistrationPayload binds a challenge to a registration form. The stored
// form keeps only the bcrypt hash; a resubmitted form carries the plaintext
// Password, which is never persisted.
type RegistrationPayload struct {
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	Address      string    `json:"address"`
	MobileNumber string    `json:"mobile_number"`
	PasswordHash string    `json:"password_hash"`
	Password     string    `json:"-"`
}

func (r *RegistrationPayload) matches(submitted *RegistrationPayload) bool {
	if r.Name != submitted.Name ||
		r.Username != submitted.Username ||
		r.Email != submitted.Email ||
		!r.DateOfBirth.Equal(submitted.DateOfBirth) ||
		r.Address != submitted.Address ||
		r.MobileNumber != submitted.MobileNumber {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(submitted.Password)) == nil
}

// Payload is the operation a challenge confirms. Exactly one of Payment or
// Registration is set.
type Payload struct {
	Payment      *PaymentPayload      `json:"payment,omitempty"`
	Registration *RegistrationPayload `json:"registration,omitempty"`
}

func ForPayment(p PaymentPayload) Payload {
	return Payload{Payment: &p}
}

func ForRegistration(r RegistrationPayload) Payload {
	return Payload{Registration: &r}
}

// Purpose derives the challenge purpose from the payload variant.
func (p Payload) Purpose() (Purpose, error) {
	switch {
	case p.Payment != nil && p.Registration == nil:
		return PurposePaymentConfirmation, nil
	case p.Registration != nil && p.Payment == nil:
		return PurposeRegistrationConfirmation, nil
	default:
		return "", dErrors.New(dErrors.CodeInvariantViolation, "payload must hold exactly one operation")
	}
}

// Matches compares a resubmitted payload with the stored one field by field.
func (p Payload) Matches(submitted Payload) bool {
	switch {
	case p.Payment != nil:
		return submitted.Payment != nil && p.Payment.matches(submitted.Payment)
	case p.Registration != nil:
		return submitted.Registration != nil && p.Registration.matches(submitted.Registration)
	default:
		return false
	}
}

// OwnerID is the user the challenge acts for, nil for registrations.
func (p Payload) OwnerID() id.UserID {
	if p.Payment != nil {
		return p.Payment.OwnerID
	}
	return id.UserID{}
}
