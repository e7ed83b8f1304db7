package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	cardmodels "securecard/internal/card/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

type Employment string

const (
	EmploymentSalaried     Employment = "salaried"
	EmploymentSelfEmployed Employment = "self_employed"
	EmploymentStudent      Employment = "student"
	EmploymentUnemployed   Employment = "unemployed"
	EmploymentRetired      Employment = "retired"
)

var employments = map[Employment]struct{}{
	EmploymentSalaried:     {},
	EmploymentSelfEmployed: {},
	EmploymentStudent:      {},
	EmploymentUnemployed:   {},
	EmploymentRetired:      {},
}

func (e Employment) IsValid() bool {
	_, ok := employments[e]
	return ok
}

// panPattern is the permanent account number format: five letters, four
// digits, one letter.
var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// Application is a request for a new card.
//
// Invariants:
//   - Status leaves Pending exactly once, to Accepted or Rejected
//   - CardID is set iff Status is Accepted
//   - MonthlyIncome >= 0
type Application struct {
	ID            id.ApplicationID    `json:"id"`
	ApplicantID   id.UserID           `json:"applicant_id"`
	Category      cardmodels.Category `json:"category"`
	Tier          cardmodels.Tier     `json:"tier"`
	PAN           string              `json:"pan"`
	Employment    Employment          `json:"employment"`
	MonthlyIncome decimal.Decimal     `json:"monthly_income"`
	Status        Status              `json:"status"`
	CardID        id.CardID           `json:"card_id"`
	DecidedBy     id.UserID           `json:"decided_by"`
	DecidedAt     *time.Time          `json:"decided_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Submission holds the applicant supplied fields.
type Submission struct {
	Category      string
	Tier          string
	PAN           string
	Employment    string
	MonthlyIncome decimal.Decimal
}

// NewApplication validates a submission and builds a pending application.
func NewApplication(appID id.ApplicationID, applicant id.UserID, sub Submission, now time.Time) (*Application, error) {
	if applicant.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant is required")
	}
	category, err := cardmodels.ParseCategory(sub.Category)
	if err != nil {
		return nil, err
	}
	tier, err := cardmodels.ParseTier(sub.Tier)
	if err != nil {
		return nil, err
	}
	pan := strings.ToUpper(strings.TrimSpace(sub.PAN))
	if !panPattern.MatchString(pan) {
		return nil, dErrors.New(dErrors.CodeValidation, "pan must look like AAAAA9999A")
	}
	employment := Employment(strings.ToLower(strings.TrimSpace(sub.Employment)))
	if !employment.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown employment status")
	}
	if sub.MonthlyIncome.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "monthly income cannot be negative")
	}
	return &Application{
		ID:            appID,
		ApplicantID:   applicant,
		Category:      category,
		Tier:          tier,
		PAN:           pan,
		Employment:    employment,
		MonthlyIncome: sub.MonthlyIncome,
		Status:        StatusPending,
		CreatedAt:     now,
	}, nil
}

// CanDecide reports whether the application is still pending.
func (a *Application) CanDecide() error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "application already "+string(a.Status))
	}
	return nil
}

// ApplyAccept records the acceptance and the issued card. Call CanDecide
// first.
func (a *Application) ApplyAccept(cardID id.CardID, by id.UserID, now time.Time) {
	a.Status = StatusAccepted
	a.CardID = cardID
	a.DecidedBy = by
	a.DecidedAt = &now
}

// ApplyReject records the rejection. Call CanDecide first.
func (a *Application) ApplyReject(by id.UserID, now time.Time) {
	a.Status = StatusRejected
	a.DecidedBy = by
	a.DecidedAt = &now
}

// AcceptedView is what the card registry needs to issue a card once the
// application has been accepted.
func (a *Application) AcceptedView() cardmodels.Application {
	return cardmodels.Application{
		ID:          a.ID,
		ApplicantID: a.ApplicantID,
		Category:    a.Category,
		Tier:        a.Tier,
		Status:      cardmodels.StatusAccepted,
	}
}

// MaskedPAN keeps the first two and last two characters.
func (a *Application) MaskedPAN() string {
	if len(a.PAN) != 10 {
		return a.PAN
	}
	return a.PAN[:2] + "******" + a.PAN[8:]
}
