package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 16

var (
	// ErrTokenExpired is returned by Verify when the signature is valid but the
	// token is past its expiry.
	ErrTokenExpired = errors.New("access token expired")

	// ErrTokenInvalid is returned by Verify for every other failure: bad
	// signature, unexpected algorithm, malformed structure or missing subject.
	ErrTokenInvalid = errors.New("access token invalid")
)

// Config configures a Manager.
type Config struct {
	// Secret is the HMAC key used to sign and verify access tokens.
	Secret []byte
	// Issuer, when set, is written to iss and required on verify.
	Issuer string
	// Leeway tolerates small clock skew when checking exp.
	Leeway time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager issues and verifies HS256 access tokens.
type Manager struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Claims is the verified payload of an access token.
type Claims struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Manager{
		secret: secret,
		issuer: strings.TrimSpace(cfg.Issuer),
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

// Issue signs a token for subject that expires after ttl.
//
// Every token carries a random jti, so two tokens for the same subject issued
// within the same second are still distinct strings.
func (m *Manager) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("jwt subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("jwt ttl must be positive")
	}

	now := m.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks the signature and expiry of token.
//
// Failures wrap either ErrTokenExpired or ErrTokenInvalid.
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.leeway > 0 {
		options = append(options, jwt.WithLeeway(m.leeway))
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	out := &Claims{
		Subject: claims.Subject,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
