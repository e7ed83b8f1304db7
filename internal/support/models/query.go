package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

const (
	MaxSubjectLength = 120
	MaxMessageLength = 2000
	MaxReplyLength   = 4000
)

// Query is a question a user raised with support.
//
// Invariants:
//   - Status moves Open -> Resolved once
//   - Reply and ResolvedAt are set iff Status is Resolved
type Query struct {
	ID         id.QueryID `json:"id"`
	UserID     id.UserID  `json:"user_id"`
	Email      string     `json:"email"`
	Subject    string     `json:"subject"`
	Message    string     `json:"message"`
	Status     Status     `json:"status"`
	Reply      string     `json:"reply,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// NewQuery validates and builds an open query for the asker.
func NewQuery(queryID id.QueryID, asker id.Caller, subject, message string, now time.Time) (*Query, error) {
	if asker.UserID.IsNil() || asker.Email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "asker identity is required")
	}
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" || utf8.RuneCountInString(subject) > MaxSubjectLength {
		return nil, dErrors.New(dErrors.CodeValidation, "subject must be 1 to 120 characters")
	}
	if message == "" || utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, dErrors.New(dErrors.CodeValidation, "message must be 1 to 2000 characters")
	}
	return &Query{
		ID:        queryID,
		UserID:    asker.UserID,
		Email:     asker.Email,
		Subject:   subject,
		Message:   message,
		Status:    StatusOpen,
		CreatedAt: now,
	}, nil
}

// ValidateReply checks an admin reply before any state changes.
func ValidateReply(reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" || utf8.RuneCountInString(reply) > MaxReplyLength {
		return "", dErrors.New(dErrors.CodeValidation, "reply must be 1 to 4000 characters")
	}
	return reply, nil
}

// Resolve closes the query with reply. A resolved query cannot be resolved
// again.
func (q *Query) Resolve(reply string, now time.Time) error {
	if q.Status == StatusResolved {
		return dErrors.New(dErrors.CodeConflict, "query already resolved")
	}
	q.Status = StatusResolved
	q.Reply = reply
	q.ResolvedAt = &now
	return nil
}
