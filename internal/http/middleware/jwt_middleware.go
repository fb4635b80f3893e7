package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/parcel-bookings/internal/http/response"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

type ctxKey string

const (
	CtxClaims ctxKey = "claims"
	CtxBody   ctxKey = "body"
)

// RequireJWT admits requests carrying a valid session bearer token and puts
// its claims on the request context.
func RequireJWT(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "invalid authorization header")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
			claims, err := tokens.ParseSession(raw)
			if err != nil || claims.Purpose != auth.PurposeSession {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}

// UserID returns the authenticated user, or 0 outside RequireJWT.
func UserID(r *http.Request) int64 {
	if c := Claims(r); c != nil {
		return c.UserID
	}
	return 0
}
