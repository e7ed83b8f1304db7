package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

// Category decides the direction of the balance invariant.
type Category string

const (
	CategoryDebit  Category = "debit"
	CategoryCredit Category = "credit"
)

func (c Category) IsValid() bool {
	return c == CategoryDebit || c == CategoryCredit
}

// ParseCategory accepts the category case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "category must be debit or credit")
	}
	return c, nil
}

// Tier is the product grade of a card. It determines the credit limit.
type Tier string

const (
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

var tierRank = map[Tier]int{
	TierSilver:   1,
	TierGold:     2,
	TierPlatinum: 3,
}

var creditLimits = map[Tier]decimal.Decimal{
	TierSilver:   decimal.NewFromInt(30000),
	TierGold:     decimal.NewFromInt(50000),
	TierPlatinum: decimal.NewFromInt(100000),
}

func (t Tier) IsValid() bool {
	_, ok := tierRank[t]
	return ok
}

// ParseTier accepts the tier case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "tier must be silver, gold or platinum")
	}
	return t, nil
}

// CreditLimit returns the maximum outstanding balance of a credit card of
// this tier.
func (t Tier) CreditLimit() decimal.Decimal {
	return creditLimits[t]
}

// CanUpgradeTo reports whether target strictly follows t in the tier order:
// silver -> gold | platinum, gold -> platinum. Platinum is terminal.
func (t Tier) CanUpgradeTo(target Tier) bool {
	if !t.IsValid() || !target.IsValid() {
		return false
	}
	return tierRank[target] > tierRank[t]
}

// Status is the approval status a card inherits from its application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusRejected
}

// Card is the aggregate root for a card account.
//
// Invariants:
//   - Debit: Balance >= 0 (available funds)
//   - Credit: 0 <= Balance <= Tier.CreditLimit() (outstanding debt)
//   - State only moves Active -> Inactive
//   - Status is Accepted for every stored card
type Card struct {
	ID            id.CardID        `json:"id"`
	OwnerID       id.UserID        `json:"owner_id"`
	Number        string           `json:"number"`
	Category      Category         `json:"category"`
	Tier          Tier             `json:"tier"`
	Balance       decimal.Decimal  `json:"balance"`
	State         State            `json:"state"`
	Status        Status           `json:"status"`
	ApplicationID id.ApplicationID `json:"application_id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewCard builds an active, accepted card with a zero balance.
func NewCard(cardID id.CardID, ownerID id.UserID, applicationID id.ApplicationID, number string, category Category, tier Tier, now time.Time) (*Card, error) {
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "card owner is required")
	}
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid card category")
	}
	if !tier.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid card tier")
	}
	if !LuhnValid(number) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "card number failed checksum")
	}
	return &Card{
		ID:            cardID,
		OwnerID:       ownerID,
		Number:        number,
		Category:      category,
		Tier:          tier,
		Balance:       decimal.Zero,
		Status:        StatusAccepted,
		ApplicationID: applicationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (c *Card) IsCredit() bool { return c.Category == CategoryCredit }

// IsUsable reports whether the card can be charged or funded.
func (c *Card) IsUsable() bool {
	return c.State.IsActive() && c.Status == StatusAccepted
}

// CreditLimit is the tier limit for credit cards and zero for debit cards.
func (c *Card) CreditLimit() decimal.Decimal {
	if !c.IsCredit() {
		return decimal.Zero
	}
	return c.Tier.CreditLimit()
}

// CheckBalance validates a candidate balance against the category invariant.
func (c *Card) CheckBalance(balance decimal.Decimal) error {
	if c.IsCredit() {
		if balance.IsNegative() {
			return dErrors.New(dErrors.CodeValidation, "credit balance cannot be negative")
		}
		if balance.GreaterThan(c.Tier.CreditLimit()) {
			return dErrors.New(dErrors.CodeLimitExceeded, "amount exceeds card limit")
		}
		return nil
	}
	if balance.IsNegative() {
		return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient funds on card")
	}
	return nil
}

// BalanceAfterCharge returns the balance a purchase of amount would leave.
// Debit cards pay out of the balance, credit cards add to the debt.
func (c *Card) BalanceAfterCharge(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	next := c.Balance.Sub(amount)
	if c.IsCredit() {
		next = c.Balance.Add(amount)
	}
	if err := c.CheckBalance(next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// BalanceAfterDeposit returns the balance after adding funds to a debit card.
func (c *Card) BalanceAfterDeposit(amount decimal.Decimal) (decimal.Decimal, error) {
	if c.IsCredit() {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, "deposits are only allowed on debit cards")
	}
	if !amount.IsPositive() {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return c.Balance.Add(amount), nil
}

// BalanceAfterBillPayment returns the outstanding debt after a repayment.
func (c *Card) BalanceAfterBillPayment(amount decimal.Decimal) (decimal.Decimal, error) {
	if !c.IsCredit() {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, "bill payments are only allowed on credit cards")
	}
	if !amount.IsPositive() {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if amount.GreaterThan(c.Balance) {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, "amount exceeds outstanding balance")
	}
	return c.Balance.Sub(amount), nil
}

// ApplyBalance replaces the balance. Call CheckBalance first.
func (c *Card) ApplyBalance(balance decimal.Decimal, now time.Time) {
	c.Balance = balance
	c.UpdatedAt = now
}

// CanChangeTier checks the tier order and that an outstanding credit balance
// still fits the target limit.
func (c *Card) CanChangeTier(target Tier) error {
	if !c.Tier.CanUpgradeTo(target) {
		return dErrors.New(dErrors.CodeInvalidTierTransition, "cannot change tier from "+string(c.Tier)+" to "+string(target))
	}
	if c.IsCredit() && c.Balance.GreaterThan(target.CreditLimit()) {
		return dErrors.New(dErrors.CodeLimitExceeded, "balance exceeds the target tier limit")
	}
	return nil
}

func (c *Card) ApplyTier(target Tier, now time.Time) {
	c.Tier = target
	c.UpdatedAt = now
}

// Deactivate moves the card to Inactive. A second call fails with
// AlreadyInactive.
func (c *Card) Deactivate(now time.Time) error {
	next, err := c.State.Deactivate()
	if err != nil {
		return dErrors.New(dErrors.CodeAlreadyInactive, "card is already inactive")
	}
	c.State = next
	c.UpdatedAt = now
	return nil
}

// MaskedNumber keeps the last four digits.
func (c *Card) MaskedNumber() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return "**** **** **** " + c.Number[len(c.Number)-4:]
}

// Application is the view of a decided card application the registry issues
// a card from.
type Application struct {
	ID          id.ApplicationID
	ApplicantID id.UserID
	Category    Category
	Tier        Tier
	Status      Status
}
