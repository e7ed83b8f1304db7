// Package email sends transactional mail (OTP codes, query replies).
package email

//go:generate mockgen -destination=mocks/sender_mock.go -package=mocks securecard/pkg/email Sender

import (
	"context"
	"strings"
	"unicode"
)

// Message is one plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers mail. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DeriveNameFromEmail guesses a first and last name from the local part of
// an address, for greetings when no profile name is known.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// Greeting renders "Dear <name>," falling back to a name derived from the address.
func Greeting(name, address string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name, _ = DeriveNameFromEmail(address)
	}
	return "Dear " + name + ","
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
