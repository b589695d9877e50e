package session

import "time"

// Session is one row per successful login. Token values are stored as SHA-256
// digests; lookups hash the submitted cookie values and compare exactly.
type Session struct {
	ID     string
	UserID string

	AccessHash  [32]byte
	RefreshHash [32]byte

	// CreatedAt and RefreshExpiresAt are unix milliseconds.
	CreatedAt        int64
	RefreshExpiresAt int64
}

// Expired reports whether the refresh token lifetime has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixMilli() >= s.RefreshExpiresAt
}

// ExpiresAt returns RefreshExpiresAt as a time.Time.
func (s *Session) ExpiresAt() time.Time {
	return time.UnixMilli(s.RefreshExpiresAt)
}
