package accounts

import "errors"

// Client-facing errors carry the messages shown to end users verbatim.
var (
	ErrInvalidCredentials    = errors.New("The email or password you have entered is invalid")
	ErrAccountNotActive      = errors.New("This account has not yet activated")
	ErrUnauthorized          = errors.New("Unauthorized")
	ErrForbidden             = errors.New("Forbidden resource")
	ErrDuplicateEmail        = errors.New("The email address you have entered is already associated with another account")
	ErrDuplicateUsername     = errors.New("The username you have entered is already associated with another account")
	ErrTokenInvalidOrExpired = errors.New("We were unable to find a valid token. Your token my have expired")
	ErrAlreadyActivated      = errors.New("This account has already been activated. Please log in")
	ErrAccountNotFound       = errors.New("We were unable to find a account with that email")
	ErrRefreshConflict       = errors.New("session was refreshed by a concurrent request")
)

// Internal errors.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionExpired          = errors.New("session expired")
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
	ErrUserStoreUnavailable    = errors.New("user store unavailable")
	ErrTokenStoreUnavailable   = errors.New("token store unavailable")
	ErrMailDelivery            = errors.New("mail delivery failed")
	ErrEngineNotReady          = errors.New("engine not initialized")
)

// ErrUserNotFound is returned by UserStore implementations when no user
// matches. The engine maps it onto the client-facing error of each operation.
var ErrUserNotFound = errors.New("user not found")

var clientErrors = []error{
	ErrInvalidCredentials,
	ErrAccountNotActive,
	ErrUnauthorized,
	ErrForbidden,
	ErrDuplicateEmail,
	ErrDuplicateUsername,
	ErrTokenInvalidOrExpired,
	ErrAlreadyActivated,
	ErrAccountNotFound,
	ErrRefreshConflict,
}

// IsClientError reports whether err is one of the user-facing account errors
// whose message may be returned to the caller as is.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
