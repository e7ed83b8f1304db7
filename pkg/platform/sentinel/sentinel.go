// Package sentinel names the storage facts stores report. Services translate
// them into coded domain errors; nothing above the service layer sees them.
package sentinel

import "errors"

var (
	// ErrNotFound means no row or key exists for the id.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint or a state guard rejected
	// the write, e.g. a generated card number that is already taken.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyUsed means a one-time reference has been consumed, e.g. an
	// application that already has its card.
	ErrAlreadyUsed = errors.New("already used")
)
