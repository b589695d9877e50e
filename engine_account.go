package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/accounts/internal"
	"github.com/MrEthical07/accounts/internal/stores"
	"github.com/google/uuid"
)

// Signup creates a Pending user with the default roles and mails a
// verification link. Email and username uniqueness are checked in that
// order. The created user is returned even though the HTTP surface does not
// echo it.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*PublicUser, error) {
	if !e.accountReady() {
		return nil, ErrEngineNotReady
	}

	email := NormalizeIdentifier(req.Email)
	username := NormalizeIdentifier(req.Username)

	if err := e.ensureAbsent(ctx, e.users.FindByEmail, email, ErrDuplicateEmail); err != nil {
		e.signupFailed(ctx, email, err)
		return nil, err
	}
	if err := e.ensureAbsent(ctx, e.users.FindByUsername, username, ErrDuplicateUsername); err != nil {
		e.signupFailed(ctx, email, err)
		return nil, err
	}

	hash, err := e.passwords.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := e.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Status:       UserStatusPending,
		Roles:        append([]string(nil), e.config.Account.DefaultRoles...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername) {
			e.signupFailed(ctx, email, err)
			return nil, err
		}
		return nil, userStoreErr(err)
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignup, true, user.ID, "", nil, nil)

	if err := e.sendVerification(ctx, user); err != nil {
		return nil, err
	}
	return user.Public(), nil
}

func (e *Engine) ensureAbsent(
	ctx context.Context,
	find func(context.Context, string) (*User, error),
	identifier string,
	duplicate error,
) error {
	_, err := find(ctx, identifier)
	switch {
	case err == nil:
		return duplicate
	case errors.Is(err, ErrUserNotFound):
		return nil
	default:
		return userStoreErr(err)
	}
}

func (e *Engine) signupFailed(ctx context.Context, email string, err error) {
	if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername) {
		e.metricInc(MetricSignupDuplicate)
	}
	e.emitAudit(ctx, auditEventSignup, false, "", "", err, func() map[string]string {
		return map[string]string{"identifier": email}
	})
}

// Verify activates the Pending owner of a verification token and consumes
// the token. A token whose owner is already active is consumed and
// ErrAlreadyActivated returned. Of concurrent calls with the same token only
// one consumes it; the others fail with ErrTokenInvalidOrExpired.
func (e *Engine) Verify(ctx context.Context, token string) error {
	if !e.accountReady() {
		return ErrEngineNotReady
	}

	rec, err := e.findToken(ctx, stores.KindUserVerification, token)
	if err != nil {
		e.verifyFailed(ctx, "", err)
		return err
	}

	user, err := e.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return userStoreErr(err)
		}
		if _, err := e.consumeToken(ctx, rec); err != nil {
			return err
		}
		e.verifyFailed(ctx, rec.UserID, ErrTokenInvalidOrExpired)
		return ErrTokenInvalidOrExpired
	}

	consumed, err := e.consumeToken(ctx, rec)
	if err != nil {
		return err
	}
	if !consumed {
		e.verifyFailed(ctx, user.ID, ErrTokenInvalidOrExpired)
		return ErrTokenInvalidOrExpired
	}
	if user.Status != UserStatusPending {
		e.verifyFailed(ctx, user.ID, ErrAlreadyActivated)
		return ErrAlreadyActivated
	}
	if err := e.users.UpdateStatus(ctx, user.ID, UserStatusActive); err != nil {
		return userStoreErr(err)
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, user.ID, "", nil, nil)
	return nil
}

func (e *Engine) verifyFailed(ctx context.Context, userID string, err error) {
	e.metricInc(MetricVerifyFailure)
	e.emitAudit(ctx, auditEventVerificationConfirm, false, userID, "", err, nil)
}

// ResendVerification regenerates the verification token of a Pending user
// and mails it again.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if !e.accountReady() {
		return ErrEngineNotReady
	}

	user, err := e.pendingUserByEmail(ctx, email, false)
	if err != nil {
		e.emitAudit(ctx, auditEventVerificationRequest, false, "", "", err, func() map[string]string {
			return map[string]string{"identifier": NormalizeIdentifier(email)}
		})
		return err
	}
	return e.sendVerification(ctx, user)
}

// ForgotPassword regenerates the password reset token of a user and mails
// the reset link. Only Pending users qualify unless
// Account.AllowResetForActive is set.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if !e.accountReady() {
		return ErrEngineNotReady
	}

	user, err := e.pendingUserByEmail(ctx, email, e.config.Account.AllowResetForActive)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, func() map[string]string {
			return map[string]string{"identifier": NormalizeIdentifier(email)}
		})
		return err
	}

	token, err := e.issueToken(ctx, user.ID, stores.KindPasswordReset)
	if err != nil {
		return err
	}
	link := e.link(e.config.Links.ResetPath, token)
	if err := e.mailer.SendPasswordReset(ctx, user.Email, user.Username, link); err != nil {
		return e.mailFailed(ctx, user.ID, "password_reset", err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	return nil
}

// CheckResetPassword reports whether token is a live password reset token.
// Nothing is changed.
func (e *Engine) CheckResetPassword(ctx context.Context, token string) error {
	if !e.accountReady() {
		return ErrEngineNotReady
	}
	_, err := e.findToken(ctx, stores.KindPasswordReset, token)
	return err
}

// ResetPassword consumes a password reset token and stores the hash of
// newPassword on its owner. The token is consumed before the hash is
// written, so of concurrent calls with the same token only one changes the
// password; the others fail with ErrTokenInvalidOrExpired.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.accountReady() {
		return ErrEngineNotReady
	}

	rec, err := e.findToken(ctx, stores.KindPasswordReset, token)
	if err != nil {
		e.resetFailed(ctx, "", err)
		return err
	}

	hash, err := e.passwords.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	consumed, err := e.consumeToken(ctx, rec)
	if err != nil {
		return err
	}
	if !consumed {
		e.resetFailed(ctx, rec.UserID, ErrTokenInvalidOrExpired)
		return ErrTokenInvalidOrExpired
	}
	if err := e.users.UpdatePasswordHash(ctx, rec.UserID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.resetFailed(ctx, rec.UserID, ErrTokenInvalidOrExpired)
			return ErrTokenInvalidOrExpired
		}
		return userStoreErr(err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, rec.UserID, "", nil, nil)
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, userID string, err error) {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, "", err, nil)
}

func (e *Engine) accountReady() bool {
	return e.ready() && e.mailer != nil && e.tokenStore != nil
}

// pendingUserByEmail loads the user for a resend or reset request. Users
// that are not Pending fail with ErrAlreadyActivated unless allowActive.
func (e *Engine) pendingUserByEmail(ctx context.Context, email string, allowActive bool) (*User, error) {
	user, err := e.users.FindByEmail(ctx, NormalizeIdentifier(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, userStoreErr(err)
	}
	if user.Status != UserStatusPending && !allowActive {
		return nil, ErrAlreadyActivated
	}
	return user, nil
}

func (e *Engine) sendVerification(ctx context.Context, user *User) error {
	token, err := e.issueToken(ctx, user.ID, stores.KindUserVerification)
	if err != nil {
		return err
	}
	link := e.link(e.config.Links.VerifyPath, token)
	if err := e.mailer.SendUserVerification(ctx, user.Email, user.Username, link); err != nil {
		return e.mailFailed(ctx, user.ID, "user_verification", err)
	}

	e.metricInc(MetricVerificationSent)
	e.emitAudit(ctx, auditEventVerificationRequest, true, user.ID, "", nil, nil)
	return nil
}

func (e *Engine) mailFailed(ctx context.Context, userID, template string, err error) error {
	e.metricInc(MetricMailFailure)
	e.logger.Error(ctx, "account mail delivery failed", "user_id", userID, "template", template, "error", err)
	return fmt.Errorf("%w: %v", ErrMailDelivery, err)
}

// issueToken upserts a fresh token of kind for userID. The previous value,
// if any, stops resolving and the expiry restarts at now + Tokens.TTL.
func (e *Engine) issueToken(ctx context.Context, userID string, kind stores.Kind) (string, error) {
	token, err := internal.NewHexToken(e.config.Tokens.Length)
	if err != nil {
		return "", err
	}
	expiresAt := e.now().Add(e.config.Tokens.TTL)
	ttl := e.config.Tokens.TTL + e.config.Tokens.Retention

	if _, err := e.tokenStore.Upsert(ctx, userID, kind, token, expiresAt, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return token, nil
}

func (e *Engine) findToken(ctx context.Context, kind stores.Kind, token string) (*stores.SingleUseToken, error) {
	rec, err := e.tokenStore.Find(ctx, kind, token)
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFound) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	if rec.Expired(e.now()) {
		return nil, ErrTokenInvalidOrExpired
	}
	return rec, nil
}

// consumeToken reports false when a concurrent caller consumed rec first.
func (e *Engine) consumeToken(ctx context.Context, rec *stores.SingleUseToken) (bool, error) {
	consumed, err := e.tokenStore.Consume(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return consumed, nil
}

func (e *Engine) link(path, token string) string {
	return strings.TrimRight(e.config.Links.WebBaseURL, "/") + path + token
}
