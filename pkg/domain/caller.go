package domain

import dErrors "securecard/pkg/domain-errors"

// Role is the authorization role of an identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Caller is the authenticated identity on whose behalf a service operation
// runs. Handlers build it from the request context and pass it explicitly.
type Caller struct {
	UserID UserID
	Email  string
	Role   Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

func (c Caller) IsAnonymous() bool {
	return c.UserID.IsNil()
}

// Owns reports whether the caller is the given owner.
func (c Caller) Owns(owner UserID) bool {
	return !c.UserID.IsNil() && c.UserID == owner
}

// RequireAuthenticated rejects anonymous callers.
func (c Caller) RequireAuthenticated() error {
	if c.IsAnonymous() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// RequireAdmin rejects callers without the admin role.
func (c Caller) RequireAdmin() error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if !c.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}
