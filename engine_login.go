package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/accounts/internal/flows"
)

// Login checks email and password, creates a session and sets both token
// cookies on cookies. An unknown email and a wrong password fail with the
// same ErrInvalidCredentials. Only Active users may log in.
func (e *Engine) Login(ctx context.Context, email, password string, cookies CookieWriter) (*PublicUser, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	cookies = cookiesOrDiscard(cookies)
	email = NormalizeIdentifier(email)

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, userStoreErr(err)
		}
		e.loginFailed(ctx, "", email, "user_not_found", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if password == "" || user.PasswordHash == "" {
		e.loginFailed(ctx, user.ID, email, "password_mismatch", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	ok, err := e.passwords.Verify(ctx, password, user.PasswordHash)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || !ok {
		e.loginFailed(ctx, user.ID, email, "password_mismatch", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if user.Status != UserStatusActive {
		e.metricInc(MetricLoginInactive)
		e.loginFailed(ctx, user.ID, email, "account_status", ErrAccountNotActive)
		return nil, ErrAccountNotActive
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, user, password)
	}

	issued := e.flow.IssueSession(ctx, user.ID)
	if issued.Failure != flows.IssueFailureNone {
		err := mapIssueFailure(issued)
		e.loginFailed(ctx, user.ID, email, "session_issue", err)
		return nil, err
	}

	e.setSessionCookies(cookies, issued.AccessToken, issued.RefreshToken)

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, issued.Session.ID, nil, nil)

	return user.Public(), nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, email, reason string, err error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"reason":     reason,
		}
	})
}

// upgradePasswordHash rehashes with the configured parameters when the
// stored hash is weaker. Failures are logged and never fail the login.
func (e *Engine) upgradePasswordHash(ctx context.Context, user *User, password string) {
	needsUpgrade, err := e.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := e.passwords.Hash(ctx, password)
	if err != nil {
		e.logger.Warn(ctx, "password hash upgrade generation failed", "user_id", user.ID, "error", err)
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
		e.logger.Warn(ctx, "password hash upgrade update failed", "user_id", user.ID, "error", err)
		return
	}
	e.metricInc(MetricPasswordHashUpgraded)
}

func mapIssueFailure(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureNotReady:
		return ErrEngineNotReady
	case flows.IssueFailureSave:
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, res.Err)
	default:
		return fmt.Errorf("issue session: %w", res.Err)
	}
}
