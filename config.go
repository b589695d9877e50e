package accounts

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/accounts/internal"
)

// Config holds every engine setting. Start from DefaultConfig and override
// what differs; Build validates the result.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Tokens   TokenConfig
	Password PasswordConfig
	Cookies  CookieConfig
	Links    LinkConfig
	Account  AccountConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS256 access tokens.
type JWTConfig struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// ConflictPolicy decides what happens when two requests refresh the same
// session concurrently.
type ConflictPolicy uint8

const (
	// ConflictReject keeps the first writer's access token; the loser's
	// request continues unauthenticated.
	ConflictReject ConflictPolicy = iota
	// ConflictOverwrite lets the last writer win; the first writer's new
	// cookie becomes stale on its next use.
	ConflictOverwrite
)

type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
	// RowRetention keeps an expired session row around long enough for the
	// refresh path to observe the expiry and delete it.
	RowRetention       time.Duration
	RefreshTokenLength int
	ConflictPolicy     ConflictPolicy
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

type TokenConfig struct {
	RedisPrefix string
	TTL         time.Duration
	Retention   time.Duration
	Length      int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
	// PoolSize bounds concurrent hash operations; 0 means runtime.NumCPU.
	PoolSize int
}

/*
====================================
COOKIE / LINK CONFIG
====================================
*/

type CookieConfig struct {
	AccessName  string
	RefreshName string
}

// LinkConfig builds the URLs mailed to users: WebBaseURL + path + token.
type LinkConfig struct {
	WebBaseURL string
	VerifyPath string
	ResetPath  string
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

type AccountConfig struct {
	DefaultRoles []string
	// AllowResetForActive lets Active accounts use forgot-password. Off by
	// default: only Pending accounts can request a reset token.
	AllowResetForActive bool
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. JWT.Secret and
// Links.WebBaseURL have no default and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Leeway:    0,
		},
		Session: SessionConfig{
			RedisPrefix:        "as",
			RefreshTTL:         30 * 24 * time.Hour,
			RowRetention:       24 * time.Hour,
			RefreshTokenLength: internal.DefaultTokenLength,
			ConflictPolicy:     ConflictReject,
		},
		Tokens: TokenConfig{
			RedisPrefix: "ast",
			TTL:         24 * time.Hour,
			Retention:   time.Hour,
			Length:      internal.DefaultTokenLength,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Cookies: CookieConfig{
			AccessName:  DefaultAccessCookieName,
			RefreshName: DefaultRefreshCookieName,
		},
		Links: LinkConfig{
			VerifyPath: "/auth/verify/",
			ResetPath:  "/auth/reset-password/",
		},
		Account: AccountConfig{
			DefaultRoles: []string{RoleUser},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.Account.DefaultRoles != nil {
		out.Account.DefaultRoles = append([]string(nil), cfg.Account.DefaultRoles...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 16 {
		return errors.New("JWT Secret must be at least 16 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be between 0 and 1m")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Session.RowRetention < 0 {
		return errors.New("Session RowRetention must be >= 0")
	}
	if err := validateTokenLength(c.Session.RefreshTokenLength); err != nil {
		return errors.New("Session RefreshTokenLength " + err.Error())
	}
	if c.Session.ConflictPolicy != ConflictReject && c.Session.ConflictPolicy != ConflictOverwrite {
		return errors.New("Session ConflictPolicy is invalid")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Single-use tokens
	if c.Tokens.TTL <= 0 {
		return errors.New("Tokens TTL must be > 0")
	}
	if c.Tokens.Retention < 0 {
		return errors.New("Tokens Retention must be >= 0")
	}
	if err := validateTokenLength(c.Tokens.Length); err != nil {
		return errors.New("Tokens Length " + err.Error())
	}
	if strings.TrimSpace(c.Tokens.RedisPrefix) == "" || c.Tokens.RedisPrefix == c.Session.RedisPrefix {
		return errors.New("Tokens RedisPrefix must be set and differ from Session RedisPrefix")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}
	if c.Password.PoolSize < 0 {
		return errors.New("Password PoolSize must be >= 0")
	}

	// Cookies
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return errors.New("Cookie names must not be empty")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("Cookie names must differ")
	}

	// Links
	u, err := url.Parse(c.Links.WebBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("Links WebBaseURL must be an absolute http(s) URL")
	}
	if !strings.HasPrefix(c.Links.VerifyPath, "/") || !strings.HasPrefix(c.Links.ResetPath, "/") {
		return errors.New("Links paths must start with '/'")
	}

	// Account
	if len(c.Account.DefaultRoles) == 0 {
		return errors.New("Account DefaultRoles must not be empty")
	}
	for _, r := range c.Account.DefaultRoles {
		if strings.TrimSpace(r) == "" {
			return errors.New("Account DefaultRoles must not contain blank roles")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func validateTokenLength(n int) error {
	if n < 32 || n > 1024 || n%2 != 0 {
		return errors.New("must be an even number between 32 and 1024")
	}
	return nil
}
