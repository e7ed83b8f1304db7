package handler

import (
	"strings"

	"securecard/internal/user/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

// RegisterRequest is submitted to start a registration and again, with the
// code, to complete it.
type RegisterRequest struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	DateOfBirth  string `json:"date_of_birth"`
	Address      string `json:"address"`
	MobileNumber string `json:"mobile_number"`
	Password     string `json:"password"`
}

func (r *RegisterRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

func (r *RegisterRequest) toForm() (models.RegistrationForm, error) {
	dob, err := models.ParseDate(r.DateOfBirth)
	if err != nil {
		return models.RegistrationForm{}, err
	}
	return models.RegistrationForm{
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		DateOfBirth:  dob,
		Address:      r.Address,
		MobileNumber: r.MobileNumber,
		Password:     r.Password,
	}, nil
}

type VerifyRegistrationRequest struct {
	RegisterRequest
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

func (r *VerifyRegistrationRequest) Normalize() {
	r.ChallengeID = strings.TrimSpace(r.ChallengeID)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *VerifyRegistrationRequest) Validate() error {
	if r.ChallengeID == "" || r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "challenge_id and code are required")
	}
	return r.RegisterRequest.Validate()
}

func (r *VerifyRegistrationRequest) challengeID() (id.ChallengeID, error) {
	return id.ParseChallengeID(r.ChallengeID)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}
