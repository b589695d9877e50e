package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/accounts"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// StatusFor maps an engine error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, accounts.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, accounts.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, accounts.ErrRefreshConflict):
		return http.StatusConflict
	case accounts.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorBody. Only client-facing errors expose
// their message; everything else is reported as a generic server error.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := http.StatusText(status)
	if status != http.StatusInternalServerError {
		msg = clientMessage(err)
	}
	WriteJSON(w, status, ErrorBody{StatusCode: status, Message: msg})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientMessage returns the message of the client-facing sentinel wrapped by
// err, dropping any wrapping context.
func clientMessage(err error) string {
	for _, target := range []error{
		accounts.ErrUnauthorized,
		accounts.ErrForbidden,
		accounts.ErrRefreshConflict,
		accounts.ErrInvalidCredentials,
		accounts.ErrAccountNotActive,
		accounts.ErrDuplicateEmail,
		accounts.ErrDuplicateUsername,
		accounts.ErrTokenInvalidOrExpired,
		accounts.ErrAlreadyActivated,
		accounts.ErrAccountNotFound,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
