// Package middleware provides the HTTP middleware chain: request metadata,
// admin authentication, and public-endpoint rate limiting.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"fete/internal/jwttoken"
	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/httputil"
	"fete/pkg/requestcontext"
)

// RequestMetadata assigns a request ID and captures client IP and User-Agent
// into the context for services and audit logging.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithClientIP(ctx, clientIP(r))
		ctx = requestcontext.WithUserAgent(ctx, r.UserAgent())

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the leftmost X-Forwarded-For entry set by the edge proxy,
// falling back to the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TokenValidator verifies admin bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireAdmin rejects requests without a valid admin bearer token and places
// the admin ID in the context.
func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized admin access",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			adminID, err := id.ParseAdminID(claims.AdminID)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminID(ctx, adminID)))
		})
	}
}
