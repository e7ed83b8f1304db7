package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "securecard/pkg/domain"
)

type TransactionKind string

const (
	TransactionPurchase    TransactionKind = "purchase"
	TransactionDeposit     TransactionKind = "deposit"
	TransactionBillPayment TransactionKind = "bill_payment"
	TransactionAdjustment  TransactionKind = "adjustment"
)

// Transaction records one balance change of a card. PaymentID is nil for
// changes not caused by a payment.
type Transaction struct {
	ID           id.TransactionID `json:"id"`
	CardID       id.CardID        `json:"card_id"`
	PaymentID    id.PaymentID     `json:"payment_id"`
	OwnerID      id.UserID        `json:"owner_id"`
	Kind         TransactionKind  `json:"kind"`
	Amount       decimal.Decimal  `json:"amount"`
	BalanceAfter decimal.Decimal  `json:"balance_after"`
	CreatedAt    time.Time        `json:"created_at"`
}

func NewTransaction(card *Card, paymentID id.PaymentID, kind TransactionKind, amount decimal.Decimal, now time.Time) *Transaction {
	return &Transaction{
		ID:           id.NewTransactionID(),
		CardID:       card.ID,
		PaymentID:    paymentID,
		OwnerID:      card.OwnerID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: card.Balance,
		CreatedAt:    now,
	}
}
