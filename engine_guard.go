package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/accounts/internal/flows"
)

// Authorize runs the per-request guard for a route with the given policy.
//
// RoutePublic returns (nil, nil) without looking at tokens. Otherwise the
// request's user is extracted (see ExtractUser), then RouteWithoutAuth fails
// with ErrForbidden when a user is present and RouteAuthenticated fails with
// ErrUnauthorized when none is. Cookie mutations from a silent refresh are
// written to cookies even when the decision is a failure.
func (e *Engine) Authorize(ctx context.Context, tokens TokenPair, policy RoutePolicy, cookies CookieWriter) (*User, error) {
	if policy == RoutePublic {
		return nil, nil
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
		}()
	}

	user, err := e.ExtractUser(ctx, tokens, cookies)
	if err != nil {
		return nil, err
	}

	switch policy {
	case RouteWithoutAuth:
		if user != nil {
			e.metricInc(MetricAuthorizeForbidden)
			return nil, ErrForbidden
		}
		e.metricInc(MetricAuthorizeAllowed)
		return nil, nil
	default:
		if user == nil {
			e.metricInc(MetricAuthorizeUnauthorized)
			return nil, ErrUnauthorized
		}
		e.metricInc(MetricAuthorizeAllowed)
		return user, nil
	}
}

// ExtractUser resolves the user a request carries, or nil.
//
// Without an access token nothing is attempted. A valid access token names
// the user directly. An invalid or expired one is exchanged through a silent
// refresh when a refresh token is present: an unknown pair or an expired
// session clears both cookies, a successful refresh sets the new access
// cookie, and a lost compare-and-swap leaves cookies alone.
//
// A failing user lookup is treated as "no user". Session store failures are
// returned as ErrSessionStoreUnavailable.
func (e *Engine) ExtractUser(ctx context.Context, tokens TokenPair, cookies CookieWriter) (*User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	cookies = cookiesOrDiscard(cookies)

	res := e.flow.Extract(ctx, tokens.AccessToken, tokens.RefreshToken)
	if res.Refresh != nil {
		e.recordRefresh(ctx, *res.Refresh)
	}

	if res.ClearCookies {
		e.clearSessionCookies(cookies)
	}
	if res.SetAccessToken != "" {
		cookies.SetCookie(e.config.Cookies.AccessName, res.SetAccessToken)
	}
	if res.Err != nil {
		return nil, refreshError(*res.Refresh)
	}
	if res.Source == flows.ExtractSourceNone {
		return nil, nil
	}

	user, lookupErr := e.lookupUser(ctx, res.UserID)
	if lookupErr != nil {
		e.metricInc(MetricUserLookupSwallowed)
		e.logger.Debug(ctx, "guard user lookup treated as anonymous", "user_id", res.UserID, "error", lookupErr)
		return nil, nil
	}
	return user, nil
}

func (e *Engine) lookupUser(ctx context.Context, userID string) (*User, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// RefreshAccessToken exchanges an (access, refresh) pair for a new access
// token without touching cookies. It fails with ErrSessionNotFound,
// ErrSessionExpired (the session is deleted) or ErrRefreshConflict.
func (e *Engine) RefreshAccessToken(ctx context.Context, tokens TokenPair) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return "", ErrSessionNotFound
	}

	res := e.flow.SilentRefresh(ctx, tokens.AccessToken, tokens.RefreshToken)
	e.recordRefresh(ctx, res)
	if res.Failure != flows.RefreshFailureNone {
		return "", refreshError(res)
	}
	return res.AccessToken, nil
}

func (e *Engine) recordRefresh(ctx context.Context, res flows.RefreshResult) {
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.SessionID, nil, nil)
		return
	case flows.RefreshFailureSessionNotFound:
		e.metricInc(MetricRefreshNotFound)
	case flows.RefreshFailureSessionExpired:
		e.metricInc(MetricRefreshExpired)
	case flows.RefreshFailureConflict:
		e.metricInc(MetricRefreshConflict)
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Warn(ctx, "silent refresh failed", "session_id", res.SessionID, "reason", res.Failure.String(), "error", res.Err)
	}

	err := refreshError(res)
	e.emitAudit(ctx, auditEventRefreshRejected, false, res.UserID, res.SessionID, err, func() map[string]string {
		return map[string]string{
			"reason": res.Failure.String(),
		}
	})
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureNone:
		return nil
	case flows.RefreshFailureSessionNotFound:
		return ErrSessionNotFound
	case flows.RefreshFailureSessionExpired:
		return ErrSessionExpired
	case flows.RefreshFailureConflict:
		return ErrRefreshConflict
	case flows.RefreshFailureStore:
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, res.Err)
	default:
		return errors.Join(errors.New("refresh access token"), res.Err)
	}
}

// Logout deletes the session matching tokens and clears both cookies. The
// refresh token narrows the match when present. Logout never fails; store
// errors are logged.
func (e *Engine) Logout(ctx context.Context, tokens TokenPair, cookies CookieWriter) {
	cookies = cookiesOrDiscard(cookies)
	if e == nil {
		return
	}

	res := e.flow.Logout(ctx, tokens.AccessToken, tokens.RefreshToken)
	if res.Err != nil {
		e.logger.Warn(ctx, "logout session delete failed", "error", res.Err)
	}

	e.clearSessionCookies(cookies)

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", nil, func() map[string]string {
		if res.Deleted {
			return map[string]string{"session_deleted": "true"}
		}
		return map[string]string{"session_deleted": "false"}
	})
}
