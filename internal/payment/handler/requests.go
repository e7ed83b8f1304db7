package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	"securecard/internal/payment/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

// CreateRequest stands in for the checkout system creating a payment.
type CreateRequest struct {
	OrderID string           `json:"order_id"`
	Amount  *decimal.Decimal `json:"amount"`
}

func (r *CreateRequest) Normalize() {
	r.OrderID = strings.TrimSpace(r.OrderID)
}

func (r *CreateRequest) Validate() error {
	if r.OrderID == "" {
		return dErrors.New(dErrors.CodeValidation, "order_id is required")
	}
	if r.Amount == nil {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	return models.ValidateAmount(*r.Amount)
}

type QuoteRequest struct {
	CouponCode string `json:"coupon_code"`
}

func (r *QuoteRequest) Validate() error {
	return nil
}

// ResolveRequest carries the owner's decision. Amount is optional and only
// compared with the payable amount the server computes.
type ResolveRequest struct {
	Action     string           `json:"action"`
	CardID     string           `json:"card_id"`
	CouponCode string           `json:"coupon_code"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

func (r *ResolveRequest) Normalize() {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.CardID = strings.TrimSpace(r.CardID)
}

func (r *ResolveRequest) Validate() error {
	if r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "action is required")
	}
	return nil
}

func (r *ResolveRequest) toModel(paymentID id.PaymentID) (models.ResolveRequest, error) {
	action, err := models.ParseAction(r.Action)
	if err != nil {
		return models.ResolveRequest{}, err
	}
	out := models.ResolveRequest{
		PaymentID:      paymentID,
		Action:         action,
		CouponCode:     r.CouponCode,
		ExpectedAmount: r.Amount,
	}
	if r.CardID != "" {
		cardID, err := id.ParseCardID(r.CardID)
		if err != nil {
			return models.ResolveRequest{}, err
		}
		out.CardID = cardID
	}
	return out, nil
}

// VerifyRequest resubmits the confirmed parameters with the code.
type VerifyRequest struct {
	ChallengeID string           `json:"challenge_id"`
	Code        string           `json:"code"`
	CardID      string           `json:"card_id"`
	Amount      *decimal.Decimal `json:"amount"`
	CouponCode  string           `json:"coupon_code"`
	Action      string           `json:"action"`
}

func (r *VerifyRequest) Normalize() {
	r.ChallengeID = strings.TrimSpace(r.ChallengeID)
	r.Code = strings.TrimSpace(r.Code)
	r.CardID = strings.TrimSpace(r.CardID)
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	if r.Action == "" {
		r.Action = string(models.ActionPaid)
	}
}

func (r *VerifyRequest) Validate() error {
	switch {
	case r.ChallengeID == "":
		return dErrors.New(dErrors.CodeValidation, "challenge_id is required")
	case r.Code == "":
		return dErrors.New(dErrors.CodeValidation, "code is required")
	case r.CardID == "":
		return dErrors.New(dErrors.CodeValidation, "card_id is required")
	case r.Amount == nil:
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	return nil
}

func (r *VerifyRequest) toModel(paymentID id.PaymentID) (models.VerifyRequest, error) {
	challengeID, err := id.ParseChallengeID(r.ChallengeID)
	if err != nil {
		return models.VerifyRequest{}, err
	}
	cardID, err := id.ParseCardID(r.CardID)
	if err != nil {
		return models.VerifyRequest{}, err
	}
	action, err := models.ParseAction(r.Action)
	if err != nil {
		return models.VerifyRequest{}, err
	}
	return models.VerifyRequest{
		ChallengeID: challengeID,
		Code:        r.Code,
		PaymentID:   paymentID,
		CardID:      cardID,
		Amount:      *r.Amount,
		CouponCode:  r.CouponCode,
		Action:      action,
	}, nil
}
