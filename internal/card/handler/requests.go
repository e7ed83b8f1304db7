package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	"securecard/internal/card/models"
	dErrors "securecard/pkg/domain-errors"
)

// maxAmountScale is the number of decimal places money amounts may carry.
const maxAmountScale = 2

// UpdateBalanceRequest replaces a card balance.
type UpdateBalanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}

func (r *UpdateBalanceRequest) Validate() error {
	if r.Balance == nil {
		return dErrors.New(dErrors.CodeValidation, "balance is required")
	}
	return validateScale(*r.Balance)
}

// AmountRequest carries a positive amount for deposits and bill payments.
type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (r *AmountRequest) Validate() error {
	if r.Amount == nil {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	if !r.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return validateScale(*r.Amount)
}

// ChangeTierRequest names the target tier.
type ChangeTierRequest struct {
	Tier string `json:"tier"`
}

func (r *ChangeTierRequest) Normalize() {
	r.Tier = strings.ToLower(strings.TrimSpace(r.Tier))
}

func (r *ChangeTierRequest) Validate() error {
	if r.Tier == "" {
		return dErrors.New(dErrors.CodeValidation, "tier is required")
	}
	_, err := models.ParseTier(r.Tier)
	return err
}

func validateScale(d decimal.Decimal) error {
	if !d.Equal(d.Round(maxAmountScale)) {
		return dErrors.New(dErrors.CodeValidation, "amounts may have at most two decimal places")
	}
	return nil
}
