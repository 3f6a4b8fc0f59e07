package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/sprintdeck/sprintdeck/internal/http/response"
	"github.com/sprintdeck/sprintdeck/internal/observability"
	"github.com/sprintdeck/sprintdeck/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// AuthMiddleware guards a route with access-token verification. The failure
// class is reported distinctly (expired vs bad signature vs malformed) so
// clients can tell a stale token from a forged one, but all of them are 401.
func AuthMiddleware(codec *security.TokenCodec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.ExtractBearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := codec.VerifyAccessToken(raw)
			if err != nil {
				outcome, message := classifyGuardFailure(err)
				observability.RecordAccessTokenValidation(r.Context(), outcome, "bearer")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "bearer")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func classifyGuardFailure(err error) (outcome, message string) {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "expired", "access token expired"
	case errors.Is(err, security.ErrTokenSignature):
		return "bad_signature", "invalid token signature"
	case errors.Is(err, security.ErrTokenMalformed):
		return "malformed", "malformed access token"
	default:
		return "invalid", "invalid access token"
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

// UserIDFromContext resolves the authenticated subject. The guard has
// already verified the token, so a missing or unparsable subject here means
// the route was wired without AuthMiddleware.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, false
	}
	return id, true
}
