package accounts

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/accounts/internal"
	internalaudit "github.com/MrEthical07/accounts/internal/audit"
	"github.com/MrEthical07/accounts/internal/flows"
	"github.com/MrEthical07/accounts/internal/logging"
	"github.com/MrEthical07/accounts/internal/stores"
	"github.com/MrEthical07/accounts/jwt"
	"github.com/MrEthical07/accounts/password"
	"github.com/MrEthical07/accounts/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use: configure it during
// initialization, call Build once and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	mailer    Mailer
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg. Build
// validates it, so an invalid cfg surfaces there rather than here.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and single-use tokens.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the account persistence. Required.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithMailer sets where verification and reset links are sent. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLogger routes engine logs to l. Without it the engine logs nothing.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for token expiry and session bookkeeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	var logger logging.Logger = logging.Nop()
	if b.logger != nil {
		logger = logging.NewSlogLogger(b.logger)
	}

	// -------- PASSWORD HASHING --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	pool, err := password.NewPool(ph, cfg.Password.PoolSize)
	if err != nil {
		return nil, err
	}

	// -------- ACCESS TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		users:        b.users,
		mailer:       b.mailer,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		tokenStore:   stores.NewSingleUseStore(b.redis, cfg.Tokens.RedisPrefix),
		passwords:    pool,
		jwtManager:   jm,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		now:          now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	// -------- FLOWS --------
	engine.flow = flows.New(flows.Deps{
		Issue: flows.IssueDeps{
			Now:              now,
			NewSessionID:     uuid.NewString,
			IssueAccessToken: engine.issueAccessToken,
			NewRefreshToken: func() (string, error) {
				return internal.NewHexToken(cfg.Session.RefreshTokenLength)
			},
			RefreshTTL:   cfg.Session.RefreshTTL,
			RowRetention: cfg.Session.RowRetention,
			SessionStore: engine.sessionStore,
		},
		Refresh: flows.RefreshDeps{
			Now:              now,
			IssueAccessToken: engine.issueAccessToken,
			StrictReplace:    cfg.Session.ConflictPolicy == ConflictReject,
			SessionStore:     engine.sessionStore,
		},
		Extract: flows.ExtractDeps{
			VerifyAccess: engine.verifyAccessToken,
		},
		Logout: flows.LogoutDeps{
			SessionStore: engine.sessionStore,
		},
	})

	b.built = true

	return engine, nil
}
