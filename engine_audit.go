package accounts

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/accounts/internal/audit"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshRejected      = "refresh_rejected"
	auditEventLogout               = "logout"
	auditEventSignup               = "signup"
	auditEventVerificationRequest  = "verification_request"
	auditEventVerificationConfirm  = "verification_confirm"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
)

// AuditErrorCode is the stable error label written on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountNotActive   AuditErrorCode = "account_not_active"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrRefreshConflict    AuditErrorCode = "refresh_conflict"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrAlreadyActivated   AuditErrorCode = "already_activated"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotActive):
		return auditErrAccountNotActive
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrRefreshConflict):
		return auditErrRefreshConflict
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrDuplicateUsername):
		return auditErrDuplicate
	case errors.Is(err, ErrTokenInvalidOrExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrAlreadyActivated):
		return auditErrAlreadyActivated
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrSessionStoreUnavailable),
		errors.Is(err, ErrUserStoreUnavailable),
		errors.Is(err, ErrTokenStoreUnavailable),
		errors.Is(err, ErrMailDelivery):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
