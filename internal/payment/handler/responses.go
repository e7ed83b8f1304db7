package handler

import (
	"time"

	"securecard/internal/payment/models"
)

type PaymentResponse struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	CardID        string     `json:"card_id,omitempty"`
	ChargedAmount string     `json:"charged_amount,omitempty"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	ChallengeID   string     `json:"challenge_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func toPaymentResponse(p *models.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:         p.ID.String(),
		OrderID:    p.OrderID,
		Amount:     p.Amount.StringFixed(2),
		Status:     string(p.Status),
		CouponCode: p.CouponCode,
		CreatedAt:  p.CreatedAt,
		ResolvedAt: p.ResolvedAt,
	}
	if !p.CardID.IsNil() {
		resp.CardID = p.CardID.String()
		resp.ChargedAmount = p.ChargedAmount.StringFixed(2)
	}
	if !p.ChallengeID.IsNil() {
		resp.ChallengeID = p.ChallengeID.String()
	}
	return resp
}

type PaymentListResponse struct {
	Payments []PaymentResponse `json:"payments"`
}

func toPaymentListResponse(payments []*models.Payment) PaymentListResponse {
	out := PaymentListResponse{Payments: make([]PaymentResponse, 0, len(payments))}
	for _, p := range payments {
		out.Payments = append(out.Payments, toPaymentResponse(p))
	}
	return out
}

type QuoteResponse struct {
	Original   string `json:"original"`
	Discount   string `json:"discount"`
	Amount     string `json:"amount"`
	CouponCode string `json:"coupon_code,omitempty"`
}

func toQuoteResponse(q *models.Quote) QuoteResponse {
	return QuoteResponse{
		Original:   q.Original.StringFixed(2),
		Discount:   q.Discount.StringFixed(2),
		Amount:     q.Amount.StringFixed(2),
		CouponCode: q.CouponCode,
	}
}

// ResolveResponse reports the outcome. When Outcome is otp_required the
// client continues with the challenge; CodeDelivered false means the code
// could not be mailed and the client should resolve again once it expires.
type ResolveResponse struct {
	Outcome        string          `json:"outcome"`
	Payment        PaymentResponse `json:"payment"`
	Amount         string          `json:"amount,omitempty"`
	CouponRejected bool            `json:"coupon_rejected,omitempty"`
	ChallengeID    string          `json:"challenge_id,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	CodeDelivered  *bool           `json:"code_delivered,omitempty"`
}

func toResolveResponse(res *models.ResolveResult) ResolveResponse {
	resp := ResolveResponse{
		Outcome:        string(res.Outcome),
		Payment:        toPaymentResponse(res.Payment),
		CouponRejected: res.CouponRejected,
	}
	if res.Outcome != models.OutcomeRejected {
		resp.Amount = res.Amount.StringFixed(2)
	}
	if res.Outcome == models.OutcomeOtpRequired {
		expires := res.ExpiresAt
		delivered := res.CodeDelivered
		resp.ChallengeID = res.ChallengeID.String()
		resp.ExpiresAt = &expires
		resp.CodeDelivered = &delivered
	}
	return resp
}
