// Package auth carries the session boundary between HTTP and the registry: it
// turns a bearer token into an authenticated caller identity.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "whitelist/pkg/domain"
	dErrors "whitelist/pkg/domain-errors"
	audit "whitelist/pkg/platform/audit"
	"whitelist/pkg/platform/httputil"
	request "whitelist/pkg/platform/middleware/request"
	"whitelist/pkg/requestcontext"
)

// SessionValidator validates a bearer token issued by the session provider.
type SessionValidator interface {
	ValidateToken(tokenString string) (*SessionClaims, error)
}

// SessionClaims represents the claims the middleware needs from a session token.
type SessionClaims struct {
	Address string
	ChainID int64
	JTI     string
}

// AuditEmitter receives security events raised at the session boundary.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

type options struct {
	auditor AuditEmitter
}

type Option func(*options)

// WithAuditEmitter records wrong_network rejections as security events.
func WithAuditEmitter(e AuditEmitter) Option {
	return func(o *options) { o.auditor = e }
}

// RequireCaller rejects requests without a valid session and injects the caller
// identity into the context. When expectedChainID is non-zero, sessions opened
// on any other network are refused with wrong_network.
func RequireCaller(validator SessionValidator, expectedChainID int64, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			caller, err := id.ParseIdentity(claims.Address)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - token without usable address",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if expectedChainID != 0 && claims.ChainID != expectedChainID {
				logger.WarnContext(ctx, "session on wrong network",
					"chain_id", claims.ChainID,
					"expected_chain_id", expectedChainID,
					"request_id", requestID,
				)
				if o.auditor != nil {
					_ = o.auditor.Emit(ctx, audit.Event{
						Action:    string(audit.EventWrongNetwork),
						Subject:   caller.String(),
						Reason:    fmt.Sprintf("chain %d, expected %d", claims.ChainID, expectedChainID),
						RequestID: requestID,
						ClientIP:  requestcontext.ClientIP(ctx),
						UserAgent: requestcontext.UserAgent(ctx),
					})
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeWrongNetwork,
					fmt.Sprintf("change the network to chain %d", expectedChainID)))
				return
			}

			ctx = requestcontext.WithCaller(ctx, caller)
			ctx = requestcontext.WithChainID(ctx, claims.ChainID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
