// Package middleware adapts engine token verification to net/http. It
// reads the Authorization header, delegates to Engine.Introspect, and
// injects the decoded identity into the request context; it makes no
// authentication decisions of its own.
package middleware

import (
	"context"
	"net/http"
	"strings"

	authvault "github.com/mkhalaf/authvault"
)

type tokenInfoContextKey struct{}

// InfoFromContext returns the identity injected by Guard.
func InfoFromContext(ctx context.Context) (*authvault.TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoContextKey{}).(*authvault.TokenInfo)
	return info, ok
}

// AccountIDFromContext returns the authenticated account id, or "".
func AccountIDFromContext(ctx context.Context) string {
	info, ok := InfoFromContext(ctx)
	if !ok {
		return ""
	}
	return info.AccountID
}

// Guard rejects requests without a verifiable bearer access token and
// injects the token's identity into the context for downstream handlers.
func Guard(engine *authvault.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			info, err := engine.Introspect(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), tokenInfoContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin is Guard plus a check on the token's admin claim.
func RequireAdmin(engine *authvault.Engine) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := InfoFromContext(r.Context())
			if !ok || !info.Admin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
