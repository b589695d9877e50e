package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UserStatus is the lifecycle state of an account. The zero value is not a
// valid status.
type UserStatus uint8

const (
	UserStatusPending UserStatus = iota + 1
	UserStatusActive
)

func (s UserStatus) String() string {
	switch s {
	case UserStatusPending:
		return "pending"
	case UserStatusActive:
		return "active"
	default:
		return "unknown"
	}
}

// ParseUserStatus is the inverse of UserStatus.String.
func ParseUserStatus(s string) (UserStatus, error) {
	switch s {
	case "pending":
		return UserStatusPending, nil
	case "active":
		return UserStatusActive, nil
	default:
		return 0, fmt.Errorf("unknown user status %q", s)
	}
}

// RoleUser is the role every new account starts with.
const RoleUser = "user"

// User is the identity and credential record. Username and Email are stored
// case-folded; PasswordHash is never serialized.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string `json:"-"`
	Status       UserStatus
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the projection of a User returned to clients.
type PublicUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// Public returns the client projection of u.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return &PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    roles,
	}
}

// NormalizeIdentifier case-folds a username or email the way users are
// stored and looked up.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TokenPair carries the cookie values presented by a request. Either field
// may be empty.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RoutePolicy tells the guard what a route expects of its caller. The zero
// value requires authentication.
type RoutePolicy uint8

const (
	// RouteAuthenticated requires a user; anonymous callers get ErrUnauthorized.
	RouteAuthenticated RoutePolicy = iota
	// RoutePublic skips every check and attaches no user.
	RoutePublic
	// RouteWithoutAuth must be reached anonymously (login, signup);
	// authenticated callers get ErrForbidden.
	RouteWithoutAuth
)

func (p RoutePolicy) String() string {
	switch p {
	case RouteAuthenticated:
		return "authenticated"
	case RoutePublic:
		return "public"
	case RouteWithoutAuth:
		return "without_auth"
	default:
		return "unknown"
	}
}

// SignupRequest is the input of Engine.Signup. Field-level validation is
// the caller's job; the engine only normalizes identifiers.
type SignupRequest struct {
	Username string
	Email    string
	Password string
}

// UserStore persists users. Lookups take case-folded identifiers and return
// ErrUserNotFound when nothing matches. Transport failures should wrap
// ErrUserStoreUnavailable.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// Create inserts u. A unique-key collision returns an error wrapping
	// ErrDuplicateEmail or ErrDuplicateUsername.
	Create(ctx context.Context, u *User) error
	UpdateStatus(ctx context.Context, id string, status UserStatus) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// Mailer delivers the account emails. link is the absolute URL embedding the
// single-use token.
type Mailer interface {
	SendUserVerification(ctx context.Context, to, username, link string) error
	SendPasswordReset(ctx context.Context, to, username, link string) error
}
