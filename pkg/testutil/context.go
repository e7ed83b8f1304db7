package testutil

import (
	"net/http"

	id "securecard/pkg/domain"
	"securecard/pkg/requestcontext"
)

// WithCaller attaches an authenticated identity to the request context.
// This simulates what the auth middleware does for a valid bearer token.
func WithCaller(req *http.Request, caller id.Caller) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// AsUser authenticates the request as a regular user.
func AsUser(req *http.Request, userID id.UserID, email string) *http.Request {
	return WithCaller(req, id.Caller{UserID: userID, Email: email, Role: id.RoleUser})
}

// AsAdmin authenticates the request as an admin.
func AsAdmin(req *http.Request, userID id.UserID) *http.Request {
	return WithCaller(req, id.Caller{UserID: userID, Email: "admin@securecard.test", Role: id.RoleAdmin})
}
