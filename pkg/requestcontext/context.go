// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values; services read them without importing net/http.
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithAdminID(ctx, adminID)
package requestcontext

import (
	"context"
	"time"

	id "fete/pkg/domain"
)

type (
	adminIDKey     struct{}
	userIDKey      struct{}
	requestIDKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestTimeKey struct{}
)

// AdminID retrieves the authenticated admin ID from the context.
// Returns the zero value if not set.
func AdminID(ctx context.Context) id.AdminID {
	if adminID, ok := ctx.Value(adminIDKey{}).(id.AdminID); ok {
		return adminID
	}
	return id.AdminID{}
}

// WithAdminID injects an admin ID into the context.
func WithAdminID(ctx context.Context, adminID id.AdminID) context.Context {
	return context.WithValue(ctx, adminIDKey{}, adminID)
}

// UserID retrieves the authenticated purchaser ID from the context.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a purchaser ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// RequestID retrieves the correlation ID set by middleware.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects a client IP into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects a User-Agent into the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// Now returns the request time when middleware pinned one, otherwise the wall
// clock. Services read time exclusively through this so tests can freeze it.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time in the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
