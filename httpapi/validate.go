package httpapi

import (
	"fmt"
	"net/mail"
	"unicode"
	"unicode/utf8"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

const (
	usernameMinLen = 4
	usernameMaxLen = 20
	emailMaxLen    = 255
	passwordMinLen = 8
	passwordMaxLen = 20

	// PasswordMinEntropyBits is the go-password-validator threshold applied on
	// top of the character-class rule.
	PasswordMinEntropyBits = 30
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateUsername applies the signup username rule: 4 to 20 characters,
// starting with a letter or digit, or with one of "-._" not immediately
// followed by another.
func ValidateUsername(username string) error {
	if username == "" {
		return invalid("username", "username should not be empty")
	}
	n := utf8.RuneCountInString(username)
	if n < usernameMinLen || n > usernameMaxLen {
		return invalid("username", "username must be longer than or equal to %d and shorter than or equal to %d characters", usernameMinLen, usernameMaxLen)
	}

	first := username[0]
	switch {
	case first >= 'a' && first <= 'z', first >= '0' && first <= '9':
	case isUsernameSeparator(first) && !isUsernameSeparator(username[1]):
	default:
		return invalid("username", "username must start with a lowercase letter, a digit or a single separator")
	}
	return nil
}

func isUsernameSeparator(c byte) bool {
	return c == '-' || c == '.' || c == '_'
}

// ValidateEmail requires a bare RFC 5322 address of at most 255 bytes.
func ValidateEmail(email string) error {
	if email == "" {
		return invalid("email", "email should not be empty")
	}
	if len(email) > emailMaxLen {
		return invalid("email", "email must be shorter than or equal to %d characters", emailMaxLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return invalid("email", "email must be an email")
	}
	return nil
}

// ValidatePassword applies the length and character-class rule, then the
// entropy check.
func ValidatePassword(password string) error {
	if password == "" {
		return invalid("password", "password should not be empty")
	}
	n := utf8.RuneCountInString(password)
	if n < passwordMinLen || n > passwordMaxLen {
		return invalid("password", "password must be longer than or equal to %d and shorter than or equal to %d characters", passwordMinLen, passwordMaxLen)
	}

	var upper, lower, digitOrSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r), !isWordRune(r):
			digitOrSymbol = true
		}
	}
	if !upper || !lower || !digitOrSymbol {
		return invalid("password", "password too weak")
	}

	if err := passwordvalidator.Validate(password, PasswordMinEntropyBits); err != nil {
		return invalid("password", "password too weak: %v", err)
	}
	return nil
}

func isWordRune(r rune) bool {
	return r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
