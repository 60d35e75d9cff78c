// Package middleware adapts the permission resolver to net/http. An
// endpoint declares the policy name "permission:<code>"; the guard
// resolves it against the caller's identity and refuses the request on
// Deny.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/accessguard/accessguard/permission"
)

type identityContextKey struct{}

// TokenParser authenticates a bearer token and returns the caller's
// identity. Implemented by the token layer (OAuth/OIDC validation lives
// outside this module).
type TokenParser func(ctx context.Context, token string) (permission.Identity, error)

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id permission.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (permission.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(permission.Identity)
	return id, ok
}

// Authenticate extracts the bearer token, parses it, and stores the
// resulting identity in the request context.
func Authenticate(parse TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := parse(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequirePermission guards a handler with a dynamic policy name. Requests
// without an identity are unauthorized; identities the resolver denies are
// forbidden. A name outside the "permission:" convention denies every
// request, which surfaces the misconfiguration immediately.
func RequirePermission(resolver *permission.Resolver, policyName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if resolver.AuthorizePolicy(r.Context(), id, policyName) != permission.Grant {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
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
