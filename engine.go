package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/accounts/internal/audit"
	"github.com/MrEthical07/accounts/internal/flows"
	"github.com/MrEthical07/accounts/internal/logging"
	"github.com/MrEthical07/accounts/internal/stores"
	"github.com/MrEthical07/accounts/jwt"
	"github.com/MrEthical07/accounts/password"
	"github.com/MrEthical07/accounts/session"
)

// Engine is the account core: login, the per-request guard with silent
// refresh, logout and the verification and password-reset flows.
//
// An Engine is safe for concurrent use once built.
type Engine struct {
	config       Config
	users        UserStore
	mailer       Mailer
	sessionStore *session.Store
	tokenStore   *stores.SingleUseStore
	passwords    *password.Pool
	jwtManager   *jwt.Manager
	flow         flows.Service
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       logging.Logger
	now          func() time.Time
}

// Close flushes pending audit events. It returns ctx.Err() if the sink does
// not drain in time.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.Close(ctx)
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the engine counters, or empty maps when metrics
// are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the session backend. The user store is checked by whoever
// owns its connection.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if _, err := e.sessionStore.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return nil
}

// CookieNames returns the configured access and refresh cookie names.
func (e *Engine) CookieNames() (access, refresh string) {
	return e.config.Cookies.AccessName, e.config.Cookies.RefreshName
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil &&
		e.users != nil &&
		e.passwords != nil &&
		e.flow.Initialized()
}

func (e *Engine) issueAccessToken(userID string) (string, error) {
	return e.jwtManager.Issue(userID, e.config.JWT.AccessTTL)
}

func (e *Engine) verifyAccessToken(token string) (string, error) {
	claims, err := e.jwtManager.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (e *Engine) setSessionCookies(cookies CookieWriter, accessToken, refreshToken string) {
	cookies.SetCookie(e.config.Cookies.AccessName, accessToken)
	cookies.SetCookie(e.config.Cookies.RefreshName, refreshToken)
}

func (e *Engine) clearSessionCookies(cookies CookieWriter) {
	cookies.ClearCookie(e.config.Cookies.AccessName)
	cookies.ClearCookie(e.config.Cookies.RefreshName)
}

// userStoreErr keeps ErrUserStoreUnavailable in the chain of any store
// failure other than a miss.
func userStoreErr(err error) error {
	if errors.Is(err, ErrUserStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
}
