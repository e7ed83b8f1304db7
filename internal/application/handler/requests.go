package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	"securecard/internal/application/models"
	dErrors "securecard/pkg/domain-errors"
)

// SubmitRequest is the card application form.
type SubmitRequest struct {
	Category      string           `json:"category"`
	Tier          string           `json:"tier"`
	PAN           string           `json:"pan"`
	Employment    string           `json:"employment"`
	MonthlyIncome *decimal.Decimal `json:"monthly_income"`
}

func (r *SubmitRequest) Normalize() {
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	r.Tier = strings.ToLower(strings.TrimSpace(r.Tier))
	r.PAN = strings.ToUpper(strings.TrimSpace(r.PAN))
	r.Employment = strings.ToLower(strings.TrimSpace(r.Employment))
}

func (r *SubmitRequest) Validate() error {
	switch {
	case r.Category == "":
		return dErrors.New(dErrors.CodeValidation, "category is required")
	case r.Tier == "":
		return dErrors.New(dErrors.CodeValidation, "tier is required")
	case r.PAN == "":
		return dErrors.New(dErrors.CodeValidation, "pan is required")
	case r.Employment == "":
		return dErrors.New(dErrors.CodeValidation, "employment is required")
	case r.MonthlyIncome == nil:
		return dErrors.New(dErrors.CodeValidation, "monthly_income is required")
	}
	return nil
}

func (r *SubmitRequest) toSubmission() models.Submission {
	return models.Submission{
		Category:      r.Category,
		Tier:          r.Tier,
		PAN:           r.PAN,
		Employment:    r.Employment,
		MonthlyIncome: *r.MonthlyIncome,
	}
}
