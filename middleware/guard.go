package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/accounts"
)

// Authorizer is the engine surface the guard needs.
type Authorizer interface {
	Authorize(ctx context.Context, tokens accounts.TokenPair, policy accounts.RoutePolicy, cookies accounts.CookieWriter) (*accounts.User, error)
	CookieNames() (access, refresh string)
}

// UserFromRequest returns the user attached by Guard.
func UserFromRequest(r *http.Request) (*accounts.User, bool) {
	return accounts.UserFromContext(r.Context())
}

// Guard enforces policy on every request. Rejected requests get the JSON
// error body; cookie mutations are written either way.
func Guard(auth Authorizer, policy accounts.RoutePolicy, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy == accounts.RoutePublic {
				next.ServeHTTP(w, r)
				return
			}
			if auth == nil {
				WriteError(w, accounts.ErrUnauthorized)
				return
			}

			ctx := WithClientIP(r)
			accessName, refreshName := auth.CookieNames()
			tokens := TokensFromRequest(r, accessName, refreshName)

			cookies := NewHTTPCookies(w, opts)
			user, err := auth.Authorize(ctx, tokens, policy, cookies)
			if err != nil {
				WriteError(w, err)
				return
			}
			if user != nil {
				ctx = accounts.WithUser(ctx, user)
			}
			next.ServeHTTP(w, withCookieValues(r, cookies.Written()).WithContext(ctx))
		})
	}
}

// WithClientIP returns the request context carrying the remote address for
// audit events.
func WithClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return accounts.WithClientIP(r.Context(), host)
}
