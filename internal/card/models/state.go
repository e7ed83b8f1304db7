package models

import (
	dErrors "securecard/pkg/domain-errors"
)

// State is the activity state of a card. The zero value is Active and the
// only transition is Deactivate. There is no way back to Active once a value
// is inactive, including decoding over it.
type State struct {
	inactive bool
}

const (
	stateActive   = "active"
	stateInactive = "inactive"
)

func (s State) IsActive() bool {
	return !s.inactive
}

func (s State) String() string {
	if s.inactive {
		return stateInactive
	}
	return stateActive
}

// Deactivate returns the inactive state.
func (s State) Deactivate() (State, error) {
	if s.inactive {
		return s, dErrors.New(dErrors.CodeInvariantViolation, "card is already inactive")
	}
	return State{inactive: true}, nil
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText rehydrates a stored state. Decoding "active" over an
// inactive value is rejected.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case stateActive:
		if s.inactive {
			return dErrors.New(dErrors.CodeInvariantViolation, "inactive card cannot be reactivated")
		}
		return nil
	case stateInactive:
		s.inactive = true
		return nil
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown card state "+string(text))
	}
}
