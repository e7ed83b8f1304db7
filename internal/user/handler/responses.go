package handler

import (
	"time"

	otpservice "securecard/internal/otp/service"
	"securecard/internal/user/models"
	"securecard/internal/user/service"
)

type UserResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DateOfBirth  string    `json:"date_of_birth"`
	Address      string    `json:"address"`
	MobileNumber string    `json:"mobile_number"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		DateOfBirth:  u.DateOfBirth.Format(models.DateLayouts[0]),
		Address:      u.Address,
		MobileNumber: u.MobileNumber,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
}

func toUserListResponse(users []*models.User) UserListResponse {
	out := UserListResponse{Users: make([]UserResponse, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, toUserResponse(u))
	}
	return out
}

// RegistrationStartedResponse tells the client which challenge to complete.
// The code itself only travels by email.
type RegistrationStartedResponse struct {
	ChallengeID   string    `json:"challenge_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	CodeDelivered bool      `json:"code_delivered"`
}

func toRegistrationStartedResponse(res *otpservice.IssueResult) RegistrationStartedResponse {
	return RegistrationStartedResponse{
		ChallengeID:   res.ChallengeID.String(),
		ExpiresAt:     res.ExpiresAt,
		CodeDelivered: res.Delivered,
	}
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

func toTokenResponse(tok *service.Token) TokenResponse {
	return TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
		User:        toUserResponse(tok.User),
	}
}
