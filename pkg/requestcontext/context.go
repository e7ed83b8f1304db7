// Package requestcontext carries request-scoped values between middleware and
// handlers without tying either to net/http.
//
// Handlers turn the authenticated identity into an explicit id.Caller before
// calling a service; services never read the identity from the context.
// Services may read Now and RequestID.
package requestcontext

import (
	"context"
	"time"

	id "securecard/pkg/domain"
)

type (
	callerKey    struct{}
	clientKey    struct{}
	requestIDKey struct{}
	timeKey      struct{}
)

// Client describes where a request came from.
type Client struct {
	IP string
	// Device is a readable label such as "Chrome on Linux".
	Device string
}

// Caller returns the authenticated identity, or the anonymous zero Caller.
func Caller(ctx context.Context) id.Caller {
	if c, ok := ctx.Value(callerKey{}).(id.Caller); ok {
		return c
	}
	return id.Caller{}
}

func WithCaller(ctx context.Context, caller id.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// ClientInfo returns the client set by the metadata middleware, if any.
func ClientInfo(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

func ClientIP(ctx context.Context) string {
	return ClientInfo(ctx).IP
}

// WithClient stores the client IP and device label.
func WithClient(ctx context.Context, ip, device string) context.Context {
	return context.WithValue(ctx, clientKey{}, Client{IP: ip, Device: device})
}

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the time pinned for this request, or time.Now outside one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the clock used by Now, for request handling and tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}
