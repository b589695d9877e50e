// Command accountd serves the accounts HTTP API.
//
// Configuration comes from the API_* environment (see internal/config).
// With -dev the process needs no external services: sessions live in an
// embedded miniredis, users in memory, mail is logged instead of sent and a
// random JWT secret is generated when none is set.
//
//	go run ./cmd/accountd -dev
//
//	curl -i -c jar.txt -X POST localhost:3000/api/auth/signup \
//	  -H 'Content-Type: application/json' \
//	  -d '{"username":"alice","email":"alice@example.com","password":"Corr3ct-horse"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/accounts"
	"github.com/MrEthical07/accounts/httpapi"
	"github.com/MrEthical07/accounts/internal"
	"github.com/MrEthical07/accounts/internal/config"
	"github.com/MrEthical07/accounts/internal/logging"
	"github.com/MrEthical07/accounts/mail"
	promexport "github.com/MrEthical07/accounts/metrics/export/prometheus"
	"github.com/MrEthical07/accounts/store/memory"
	mongostore "github.com/MrEthical07/accounts/store/mongo"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	dev := flag.Bool("dev", false, "run with embedded redis, in-memory users and logged mail")
	flag.Parse()

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	if *dev && settings.IsProduction() {
		log.Fatal("-dev cannot be used with APP_ENV=production")
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	logger, err := logging.New(os.Stderr, settings.LogLevel, settings.EffectiveLogFormat())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger, *dev); err != nil {
		logger.Error(context.Background(), "accountd stopped", "error", err)
		os.Exit(1)
	}
}

// backends are the stores and mailer the engine runs on, plus whatever must
// be released at shutdown.
type backends struct {
	redis   redis.UniversalClient
	users   accounts.UserStore
	mailer  accounts.Mailer
	closers []func(context.Context)
}

func (b *backends) close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i](ctx)
	}
}

func run(ctx context.Context, settings config.Settings, logger *logging.SlogLogger, dev bool) error {
	var (
		b   *backends
		err error
	)
	if dev {
		b, err = devBackends(logger)
	} else {
		b, err = prodBackends(ctx, settings)
	}
	if err != nil {
		return err
	}
	defer b.close(context.Background())

	cfg := settings.EngineConfig()
	if dev {
		if len(cfg.JWT.Secret) == 0 {
			secret, err := internal.NewHexToken(32)
			if err != nil {
				return fmt.Errorf("generate jwt secret: %w", err)
			}
			cfg.JWT.Secret = []byte(secret)
			logger.Warn(ctx, "using a generated JWT secret; sessions do not survive restarts")
		}
		if cfg.Links.WebBaseURL == "" {
			cfg.Links.WebBaseURL = "http://localhost:" + fmt.Sprint(settings.Port)
		}
	}

	builder := accounts.New().
		WithConfig(cfg).
		WithRedis(b.redis).
		WithUserStore(b.users).
		WithMailer(b.mailer).
		WithLogger(logger.Slog())
	if settings.AuditEnabled {
		builder = builder.WithAuditSink(accounts.NewSlogSink(logger.Slog().With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if err := engine.Close(context.Background()); err != nil {
			logger.Warn(context.Background(), "engine close", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	api, err := httpapi.New(engine, httpapi.Options{
		Prefix:   settings.GlobalPrefix,
		Cookies:  settings.CookieOptions(),
		Logger:   logger.With("component", "http"),
		Registry: registry,
	})
	if err != nil {
		return fmt.Errorf("http api: %w", err)
	}

	srv := &http.Server{
		Addr:              settings.Addr(),
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "accountd listening", "addr", srv.Addr, "env", settings.Env, "dev", dev)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func devBackends(logger *logging.SlogLogger) (*backends, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start miniredis: %w", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return &backends{
		redis:  rdb,
		users:  memory.NewUserStore(),
		mailer: mail.NewRecorder(logger.With("component", "mail")),
		closers: []func(context.Context){
			func(context.Context) { mr.Close() },
			func(context.Context) { _ = rdb.Close() },
		},
	}, nil
}

func prodBackends(ctx context.Context, settings config.Settings) (*backends, error) {
	b := &backends{}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{settings.RedisAddr},
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
	})
	b.closers = append(b.closers, func(context.Context) { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		b.close(ctx)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b.redis = rdb

	client, err := mongostore.Connect(ctx, settings.MongoURI)
	if err != nil {
		b.close(ctx)
		return nil, err
	}
	b.closers = append(b.closers, func(ctx context.Context) { _ = client.Disconnect(ctx) })
	users := mongostore.NewUserStore(client.Database(settings.MongoDatabase), "")
	if err := users.EnsureIndexes(ctx); err != nil {
		b.close(ctx)
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	b.users = users

	sender, err := mail.NewSender(settings.SMTP())
	if err != nil {
		b.close(ctx)
		return nil, err
	}
	b.mailer = sender
	return b, nil
}
