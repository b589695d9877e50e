package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/accounts"
	"github.com/MrEthical07/accounts/internal/logging"
	"github.com/MrEthical07/accounts/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the accounts.Engine surface the gateway calls.
type Engine interface {
	middleware.Authorizer
	Login(ctx context.Context, email, password string, cookies accounts.CookieWriter) (*accounts.PublicUser, error)
	Logout(ctx context.Context, tokens accounts.TokenPair, cookies accounts.CookieWriter)
	Signup(ctx context.Context, req accounts.SignupRequest) (*accounts.PublicUser, error)
	ResendVerification(ctx context.Context, email string) error
	Verify(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	CheckResetPassword(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Ping(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	// Prefix is prepended to every /auth route. Defaults to "/api".
	Prefix  string
	Cookies middleware.CookieOptions
	Logger  logging.Logger
	// Registry receives the HTTP metrics and backs /metrics. Nil disables
	// both.
	Registry *prometheus.Registry
	// MaxBodyBytes caps JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Server routes requests to the engine.
type Server struct {
	engine  Engine
	opts    Options
	log     logging.Logger
	metrics *httpMetrics
	router  *mux.Router
}

// New builds the router for engine under opts.Prefix ("/api" by default).
// It fails only when opts.Registry rejects the HTTP metrics, for example
// because they are already registered. The returned Server is safe for
// concurrent requests.
func New(engine Engine, opts Options) (*Server, error) {
	if opts.Prefix == "" {
		opts.Prefix = "/api"
	}
	opts.Prefix = "/" + strings.Trim(opts.Prefix, "/")
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		engine: engine,
		opts:   opts,
		log:    opts.Logger,
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	if opts.Registry != nil {
		m, err := newHTTPMetrics(opts.Registry)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound)
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed)
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed
	if s.metrics != nil {
		r.Use(s.metrics.instrument)
	}

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if s.opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r
	if s.opts.Prefix != "/" {
		api = r.PathPrefix(s.opts.Prefix).Subrouter()
		api.NotFoundHandler = notFound
		api.MethodNotAllowedHandler = notAllowed
	}

	auth := s.guarded(accounts.RouteAuthenticated)
	anon := s.guarded(accounts.RouteWithoutAuth)

	api.Handle("/auth/logout", auth(s.logout)).Methods(http.MethodPost)
	api.Handle("/auth/signup", anon(s.signup)).Methods(http.MethodPost)
	api.Handle("/auth/resend-verification", anon(s.resendVerification)).Methods(http.MethodPost)
	api.Handle("/auth/verify/{token}", anon(s.verify)).Methods(http.MethodPost)
	api.Handle("/auth/forgot-password", anon(s.forgotPassword)).Methods(http.MethodPost)
	api.Handle("/auth/check-reset-password/{token}", anon(s.checkResetPassword)).Methods(http.MethodPost)
	api.Handle("/auth/reset-password/{token}", anon(s.resetPassword)).Methods(http.MethodPost)
	api.Handle("/auth/login", anon(s.login)).Methods(http.MethodPost)
	api.Handle("/auth/user", auth(s.user)).Methods(http.MethodGet)

	return r
}

func (s *Server) guarded(policy accounts.RoutePolicy) func(http.HandlerFunc) http.Handler {
	guard := middleware.Guard(s.engine, policy, s.opts.Cookies)
	return func(h http.HandlerFunc) http.Handler {
		return guard(h)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.log.Warn(r.Context(), "readiness check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeStatus(w http.ResponseWriter, status int) {
	middleware.WriteJSON(w, status, middleware.ErrorBody{StatusCode: status, Message: http.StatusText(status)})
}
