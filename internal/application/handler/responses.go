package handler

import (
	"time"

	"securecard/internal/application/models"
)

type ApplicationResponse struct {
	ID            string     `json:"id"`
	ApplicantID   string     `json:"applicant_id"`
	Category      string     `json:"category"`
	Tier          string     `json:"tier"`
	PAN           string     `json:"pan"`
	Employment    string     `json:"employment"`
	MonthlyIncome string     `json:"monthly_income"`
	Status        string     `json:"status"`
	CardID        string     `json:"card_id,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toApplicationResponse(a *models.Application) ApplicationResponse {
	resp := ApplicationResponse{
		ID:            a.ID.String(),
		ApplicantID:   a.ApplicantID.String(),
		Category:      string(a.Category),
		Tier:          string(a.Tier),
		PAN:           a.MaskedPAN(),
		Employment:    string(a.Employment),
		MonthlyIncome: a.MonthlyIncome.StringFixed(2),
		Status:        string(a.Status),
		DecidedAt:     a.DecidedAt,
		CreatedAt:     a.CreatedAt,
	}
	if !a.CardID.IsNil() {
		resp.CardID = a.CardID.String()
	}
	return resp
}

type ApplicationListResponse struct {
	Applications []ApplicationResponse `json:"applications"`
}

func toApplicationListResponse(apps []*models.Application) ApplicationListResponse {
	out := ApplicationListResponse{Applications: make([]ApplicationResponse, 0, len(apps))}
	for _, a := range apps {
		out.Applications = append(out.Applications, toApplicationResponse(a))
	}
	return out
}
