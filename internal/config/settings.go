// Package config loads the accountd process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/accounts"
	"github.com/MrEthical07/accounts/mail"
	"github.com/MrEthical07/accounts/middleware"
	"github.com/caarlos0/env/v11"
)

const EnvProduction = "production"

// Settings mirrors the API_* environment of the service. Token lifetimes are
// whole seconds.
type Settings struct {
	Env          string `env:"APP_ENV"           envDefault:"development"`
	Host         string `env:"API_HOST"          envDefault:"0.0.0.0"`
	Port         int    `env:"API_PORT"          envDefault:"3000"`
	GlobalPrefix string `env:"API_GLOBAL_PREFIX" envDefault:"api"`

	CookieSecret string `env:"API_COOKIE_SECRET"`
	CookieDomain string `env:"API_COOKIE_DOMAIN"`

	MongoURI      string `env:"API_MONGODB_URI"`
	MongoDatabase string `env:"API_MONGODB_DATABASE" envDefault:"accounts"`

	RedisAddr     string `env:"API_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"API_REDIS_PASSWORD"`
	RedisDB       int    `env:"API_REDIS_DB"       envDefault:"0"`

	JWTSecret             string `env:"API_JWT_SECRET"`
	AccessTokenExpiresIn  int    `env:"API_ACCESS_TOKEN_EXPIRES_IN"  envDefault:"900"`
	RefreshTokenExpiresIn int    `env:"API_REFRESH_TOKEN_EXPIRES_IN" envDefault:"2592000"`

	SMTPHost     string `env:"API_SMTP_HOST"`
	SMTPPort     int    `env:"API_SMTP_PORT"     envDefault:"587"`
	SMTPUser     string `env:"API_SMTP_USER"`
	SMTPPass     string `env:"API_SMTP_PASS"`
	SMTPFrom     string `env:"API_SMTP_FROM"`
	SMTPInsecure bool   `env:"API_SMTP_INSECURE" envDefault:"false"`

	WebBaseURL string `env:"API_WEB_BASE_URL"`

	LogLevel  string `env:"API_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"API_LOG_FORMAT"`

	AuditEnabled   bool `env:"API_AUDIT_ENABLED"   envDefault:"false"`
	MetricsEnabled bool `env:"API_METRICS_ENABLED" envDefault:"true"`
}

// Load parses the process environment.
func Load() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, EnvProduction)
}

func (s Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// EffectiveLogFormat is LogFormat, or json in production and text elsewhere.
func (s Settings) EffectiveLogFormat() string {
	if s.LogFormat != "" {
		return s.LogFormat
	}
	if s.IsProduction() {
		return "json"
	}
	return "text"
}

// Validate checks the settings a production process cannot run without.
// Development runs fall back to in-process stores and a mail recorder.
func (s Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("API_PORT %d out of range", s.Port)
	}
	if s.AccessTokenExpiresIn <= 0 || s.RefreshTokenExpiresIn <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if s.AccessTokenExpiresIn >= s.RefreshTokenExpiresIn {
		return errors.New("API_ACCESS_TOKEN_EXPIRES_IN must be shorter than API_REFRESH_TOKEN_EXPIRES_IN")
	}
	if s.CookieSecret != "" && s.CookieSecret == s.JWTSecret {
		return errors.New("API_COOKIE_SECRET must differ from API_JWT_SECRET")
	}
	if !s.IsProduction() {
		return nil
	}

	missing := []string{}
	for name, v := range map[string]string{
		"API_JWT_SECRET":   s.JWTSecret,
		"API_MONGODB_URI":  s.MongoURI,
		"API_SMTP_HOST":    s.SMTPHost,
		"API_SMTP_FROM":    s.SMTPFrom,
		"API_WEB_BASE_URL": s.WebBaseURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if s.SMTPInsecure {
		return errors.New("API_SMTP_INSECURE is not allowed in production")
	}
	return nil
}

// EngineConfig maps the settings onto an engine configuration.
func (s Settings) EngineConfig() accounts.Config {
	cfg := accounts.DefaultConfig()
	cfg.JWT.Secret = []byte(s.JWTSecret)
	cfg.JWT.Issuer = "accounts"
	cfg.JWT.AccessTTL = seconds(s.AccessTokenExpiresIn)
	cfg.Session.RefreshTTL = seconds(s.RefreshTokenExpiresIn)
	cfg.Links.WebBaseURL = s.WebBaseURL
	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled
	return cfg
}

// CookieOptions returns the session cookie attributes. Cookies outlive the
// access token so an expired one can still be refreshed.
func (s Settings) CookieOptions() middleware.CookieOptions {
	return middleware.CookieOptions{
		Path:     "/",
		Domain:   s.CookieDomain,
		Secure:   s.IsProduction(),
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   seconds(s.RefreshTokenExpiresIn),
	}
}

func (s Settings) SMTP() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:               s.SMTPHost,
		Port:               s.SMTPPort,
		Username:           s.SMTPUser,
		Password:           s.SMTPPass,
		From:               s.SMTPFrom,
		InsecureSkipVerify: s.SMTPInsecure,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
