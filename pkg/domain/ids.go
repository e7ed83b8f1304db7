// Package domain holds the primitive types shared across modules: typed
// identifiers and the explicit caller identity passed into services.
//
// Typed IDs wrap uuid.UUID so a CardID can never be handed to a function
// expecting a PaymentID. Parse functions are the only way to build them from
// untrusted input and reject empty, malformed and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "securecard/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	CardID        uuid.UUID
	ApplicationID uuid.UUID
	PaymentID     uuid.UUID
	ChallengeID   uuid.UUID
	TransactionID uuid.UUID
	QueryID       uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id CardID) String() string        { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) String() string     { return uuid.UUID(id).String() }
func (id ChallengeID) String() string   { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }
func (id QueryID) String() string       { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id CardID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ChallengeID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id QueryID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewCardID() CardID               { return CardID(uuid.New()) }
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }
func NewPaymentID() PaymentID         { return PaymentID(uuid.New()) }
func NewChallengeID() ChallengeID     { return ChallengeID(uuid.New()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }
func NewQueryID() QueryID             { return QueryID(uuid.New()) }

// parseUUID enforces the shared parsing invariant for every ID type.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseCardID(s string) (CardID, error) {
	u, err := parseUUID(s, "card id")
	return CardID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s, "payment id")
	return PaymentID(u), err
}

func ParseChallengeID(s string) (ChallengeID, error) {
	u, err := parseUUID(s, "challenge id")
	return ChallengeID(u), err
}

func ParseQueryID(s string) (QueryID, error) {
	u, err := parseUUID(s, "query id")
	return QueryID(u), err
}

// Text encoding keeps IDs readable in JSON payloads persisted by stores. A nil
// ID encodes as the empty string and decodes back to nil.

func marshalUUID(u uuid.UUID) ([]byte, error) {
	if u == uuid.Nil {
		return []byte{}, nil
	}
	return []byte(u.String()), nil
}

func unmarshalUUID(data []byte, kind string) (uuid.UUID, error) {
	if len(data) == 0 {
		return uuid.Nil, nil
	}
	u, err := uuid.ParseBytes(data)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func (id UserID) MarshalText() ([]byte, error)        { return marshalUUID(uuid.UUID(id)) }
func (id CardID) MarshalText() ([]byte, error)        { return marshalUUID(uuid.UUID(id)) }
func (id ApplicationID) MarshalText() ([]byte, error) { return marshalUUID(uuid.UUID(id)) }
func (id PaymentID) MarshalText() ([]byte, error)     { return marshalUUID(uuid.UUID(id)) }
func (id ChallengeID) MarshalText() ([]byte, error)   { return marshalUUID(uuid.UUID(id)) }
func (id TransactionID) MarshalText() ([]byte, error) { return marshalUUID(uuid.UUID(id)) }
func (id QueryID) MarshalText() ([]byte, error)       { return marshalUUID(uuid.UUID(id)) }

func (id *UserID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "user id")
	*id = UserID(u)
	return err
}

func (id *CardID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "card id")
	*id = CardID(u)
	return err
}

func (id *ApplicationID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "application id")
	*id = ApplicationID(u)
	return err
}

func (id *PaymentID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "payment id")
	*id = PaymentID(u)
	return err
}

func (id *ChallengeID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "challenge id")
	*id = ChallengeID(u)
	return err
}

func (id *TransactionID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "transaction id")
	*id = TransactionID(u)
	return err
}

func (id *QueryID) UnmarshalText(data []byte) error {
	u, err := unmarshalUUID(data, "query id")
	*id = QueryID(u)
	return err
}
