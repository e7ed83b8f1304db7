package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

// CodeLength is the number of digits in a one-time passcode.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

type Purpose string

const (
	PurposePaymentConfirmation      Purpose = "payment_confirmation"
	PurposeRegistrationConfirmation Purpose = "registration_confirmation"
)

type State string

const (
	StateIssued   State = "issued"
	StateVerified State = "verified"
	StateFailed   State = "failed"
)

// Challenge is a short-lived one-time passcode bound to a payload.
//
// Invariants:
//   - the plaintext code is never stored, only CodeHash
//   - State moves Issued -> Verified or Issued -> Failed, never back
//   - Attempts never exceeds MaxAttempts
type Challenge struct {
	ID          id.ChallengeID `json:"id"`
	Purpose     Purpose        `json:"purpose"`
	Target      string         `json:"target"`
	CodeHash    string         `json:"code_hash"`
	Payload     Payload        `json:"payload"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	State       State          `json:"state"`
}

// NewChallenge builds an issued challenge for code. The purpose must agree
// with the payload variant.
func NewChallenge(challengeID id.ChallengeID, purpose Purpose, target, code string, payload Payload, now time.Time, ttl time.Duration, maxAttempts int) (*Challenge, error) {
	derived, err := payload.Purpose()
	if err != nil {
		return nil, err
	}
	if derived != purpose {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payload does not match challenge purpose")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge target is required")
	}
	if ttl <= 0 || maxAttempts < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge policy must have a positive ttl and attempt budget")
	}
	return &Challenge{
		ID:          challengeID,
		Purpose:     purpose,
		Target:      target,
		CodeHash:    HashCode(challengeID, code),
		Payload:     payload,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		MaxAttempts: maxAttempts,
		State:       StateIssued,
	}, nil
}

// HashCode binds a code to its challenge so equal codes of different
// challenges hash differently.
func HashCode(challengeID id.ChallengeID, code string) string {
	sum := sha256.Sum256([]byte(challengeID.String() + code))
	return hex.EncodeToString(sum[:])
}

// GenerateCode draws a uniformly distributed zero-padded code from r, or from
// crypto/rand when r is nil.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// IsExpired reports whether now is past ExpiresAt.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsLive reports whether the challenge can still be verified.
func (c *Challenge) IsLive(now time.Time) bool {
	return c.State == StateIssued && !c.IsExpired(now)
}

// CheckUsable returns the error a verification of this challenge would fail
// with before any code is compared.
func (c *Challenge) CheckUsable(now time.Time) error {
	switch c.State {
	case StateVerified:
		return dErrors.New(dErrors.CodeOTPAlreadyConsumed, "challenge already used")
	case StateFailed:
		return dErrors.New(dErrors.CodeOTPInvalid, "challenge is no longer valid")
	}
	if c.IsExpired(now) {
		return dErrors.New(dErrors.CodeOTPExpired, "challenge expired")
	}
	return nil
}

// CodeMatches compares in constant time.
func (c *Challenge) CodeMatches(code string) bool {
	got := HashCode(c.ID, strings.TrimSpace(code))
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.CodeHash)) == 1
}

// RecordFailure counts a failed attempt and fails the challenge once the
// budget is spent.
func (c *Challenge) RecordFailure() {
	c.Attempts++
	if c.Attempts >= c.MaxAttempts {
		c.State = StateFailed
	}
}

// Consume moves an issued challenge to Verified.
func (c *Challenge) Consume() error {
	if c.State != StateIssued {
		return dErrors.New(dErrors.CodeOTPAlreadyConsumed, "challenge already used")
	}
	c.State = StateVerified
	return nil
}

// RemainingAttempts is never negative.
func (c *Challenge) RemainingAttempts() int {
	if c.Attempts >= c.MaxAttempts {
		return 0
	}
	return c.MaxAttempts - c.Attempts
}
