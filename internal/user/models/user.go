package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	otpmodels "securecard/internal/otp/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
)

// DateLayouts are the accepted date-of-birth formats, ISO first.
var DateLayouts = []string{"2006-01-02", "01-02-2006"}

const MinPasswordLength = 6

// User is a registered account. Users are only created by a verified
// registration challenge.
type User struct {
	ID           id.UserID `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	Address      string    `json:"address"`
	MobileNumber string    `json:"mobile_number"`
	PasswordHash string    `json:"-"`
	Role         id.Role   `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Caller is the identity the user acts as.
func (u *User) Caller() id.Caller {
	return id.Caller{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// RegistrationForm is what a prospective user submits, both to start a
// registration and again with the code to complete it.
type RegistrationForm struct {
	Name         string
	Username     string
	Email        string
	DateOfBirth  time.Time
	Address      string
	MobileNumber string
	Password     string
}

// Normalize trims every field and lowercases email and username, which are
// unique case-insensitively.
func (f *RegistrationForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Username = strings.ToLower(strings.TrimSpace(f.Username))
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Address = strings.TrimSpace(f.Address)
	f.MobileNumber = strings.TrimSpace(f.MobileNumber)
}

func (f *RegistrationForm) Validate(now time.Time) error {
	switch {
	case !between(f.Name, 2, 50):
		return dErrors.New(dErrors.CodeValidation, "name must be 2 to 50 characters")
	case !between(f.Username, 4, 20):
		return dErrors.New(dErrors.CodeValidation, "username must be 4 to 20 characters")
	case !emailPattern.MatchString(f.Email):
		return dErrors.New(dErrors.CodeValidation, "invalid email format")
	case utf8.RuneCountInString(f.Password) < MinPasswordLength:
		return dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters")
	case !between(f.Address, 5, 100):
		return dErrors.New(dErrors.CodeValidation, "address must be 5 to 100 characters")
	case !mobilePattern.MatchString(f.MobileNumber):
		return dErrors.New(dErrors.CodeValidation, "mobile number must be a valid 10-digit number")
	case f.DateOfBirth.IsZero() || !f.DateOfBirth.Before(now):
		return dErrors.New(dErrors.CodeValidation, "date of birth must be in the past")
	}
	return nil
}

// Payload binds the form to a registration challenge. passwordHash replaces
// the plaintext password, which is never stored.
func (f *RegistrationForm) Payload(passwordHash string) otpmodels.RegistrationPayload {
	return otpmodels.RegistrationPayload{
		Name:         f.Name,
		Username:     f.Username,
		Email:        f.Email,
		DateOfBirth:  f.DateOfBirth,
		Address:      f.Address,
		MobileNumber: f.MobileNumber,
		PasswordHash: passwordHash,
	}
}

// Resubmitted is the form as compared against a stored payload.
func (f *RegistrationForm) Resubmitted() otpmodels.RegistrationPayload {
	p := f.Payload("")
	p.Password = f.Password
	return p
}

// ParseDate accepts any of DateLayouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dErrors.New(dErrors.CodeValidation, "date of birth must be YYYY-MM-DD or MM-DD-YYYY")
}

// NewUser builds the account a verified registration creates.
func NewUser(userID id.UserID, reg otpmodels.RegistrationPayload, role id.Role, now time.Time) (*User, error) {
	if reg.PasswordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration is missing a password hash")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	return &User{
		ID:           userID,
		Name:         reg.Name,
		Username:     reg.Username,
		Email:        reg.Email,
		DateOfBirth:  reg.DateOfBirth,
		Address:      reg.Address,
		MobileNumber: reg.MobileNumber,
		PasswordHash: reg.PasswordHash,
		Role:         role,
		CreatedAt:    now,
	}, nil
}

func between(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}
