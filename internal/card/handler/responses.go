package handler

import (
	"time"

	"securecard/internal/card/models"
)

type CardResponse struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Category    string    `json:"category"`
	Tier        string    `json:"tier"`
	Balance     string    `json:"balance"`
	CreditLimit string    `json:"credit_limit,omitempty"`
	State       string    `json:"state"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCardResponse(c *models.Card) CardResponse {
	resp := CardResponse{
		ID:        c.ID.String(),
		Number:    c.MaskedNumber(),
		Category:  string(c.Category),
		Tier:      string(c.Tier),
		Balance:   c.Balance.StringFixed(2),
		State:     c.State.String(),
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.IsCredit() {
		resp.CreditLimit = c.CreditLimit().StringFixed(2)
	}
	return resp
}

type CardListResponse struct {
	Cards []CardResponse `json:"cards"`
}

func toCardListResponse(cards []*models.Card) CardListResponse {
	out := CardListResponse{Cards: make([]CardResponse, 0, len(cards))}
	for _, c := range cards {
		out.Cards = append(out.Cards, toCardResponse(c))
	}
	return out
}

type TransactionResponse struct {
	ID           string    `json:"id"`
	PaymentID    string    `json:"payment_id,omitempty"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

func toTransactionListResponse(txns []*models.Transaction) TransactionListResponse {
	out := TransactionListResponse{Transactions: make([]TransactionResponse, 0, len(txns))}
	for _, t := range txns {
		resp := TransactionResponse{
			ID:           t.ID.String(),
			Kind:         string(t.Kind),
			Amount:       t.Amount.StringFixed(2),
			BalanceAfter: t.BalanceAfter.StringFixed(2),
			CreatedAt:    t.CreatedAt,
		}
		if !t.PaymentID.IsNil() {
			resp.PaymentID = t.PaymentID.String()
		}
		out.Transactions = append(out.Transactions, resp)
	}
	return out
}
