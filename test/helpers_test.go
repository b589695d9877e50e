//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/accounts"
	"github.com/MrEthical07/accounts/httpapi"
	"github.com/MrEthical07/accounts/mail"
	"github.com/MrEthical07/accounts/middleware"
	"github.com/MrEthical07/accounts/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	webBaseURL = "https://app.example.com"
	password   = "Sup3rSecret!"
)

// redisMode describes which Redis backend a suite runs against. miniredis
// is always available; a real server is added when REDIS_ADDR is set.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}
	return modes
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stack is a running HTTP API backed by a real engine.
type stack struct {
	srv    *httptest.Server
	engine *accounts.Engine
	mailer *mail.Recorder
	users  *memory.UserStore
	rdb    redis.UniversalClient
	clock  *clock
}

func newStack(t *testing.T, rdb redis.UniversalClient, mutate func(*accounts.Config)) *stack {
	t.Helper()

	cfg := accounts.DefaultConfig()
	cfg.JWT.Secret = []byte("integration-secret-0123456789abcdef")
	cfg.JWT.Issuer = "accounts-integration"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Links.WebBaseURL = webBaseURL
	if mutate != nil {
		mutate(&cfg)
	}

	clk := &clock{now: time.Now()}
	users := memory.NewUserStore()
	recorder := mail.NewRecorder(nil)
	engine, err := accounts.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(recorder).
		WithClock(clk.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	cookies := middleware.DefaultCookieOptions()
	cookies.Secure = false
	api, err := httpapi.New(engine, httpapi.Options{Cookies: cookies, Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("http api: %v", err)
	}

	srv := httptest.NewServer(api)
	t.Cleanup(func() {
		srv.Close()
		_ = engine.Close(context.Background())
	})
	return &stack{srv: srv, engine: engine, mailer: recorder, users: users, rdb: rdb, clock: clk}
}

// client returns an HTTP client with its own cookie jar, i.e. one browser.
func (s *stack) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

func (s *stack) do(t *testing.T, c *http.Client, method, path, body string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return response{status: resp.StatusCode, body: data, cookies: resp.Cookies()}
}

func (r response) expect(t *testing.T, status int) response {
	t.Helper()
	if r.status != status {
		t.Fatalf("expected %d, got %d: %s", status, r.status, r.body)
	}
	return r
}

func (r response) expectError(t *testing.T, status int, msg string) {
	t.Helper()
	r.expect(t, status)
	var body middleware.ErrorBody
	if err := json.Unmarshal(r.body, &body); err != nil {
		t.Fatalf("decode error body %q: %v", r.body, err)
	}
	if body.StatusCode != status || body.Message != msg {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func (r response) cookie(name string) (*http.Cookie, bool) {
	for _, ck := range r.cookies {
		if ck.Name == name {
			return ck, true
		}
	}
	return nil, false
}

// mailedToken returns the token at the end of the latest link of template.
func (s *stack) mailedToken(t *testing.T, template, path string) string {
	t.Helper()
	m, ok := s.mailer.Last(template)
	if !ok {
		t.Fatalf("no %s mail recorded", template)
	}
	prefix := webBaseURL + path
	if !strings.HasPrefix(m.Link, prefix) {
		t.Fatalf("unexpected link %q", m.Link)
	}
	return strings.TrimPrefix(m.Link, prefix)
}

// activeUser signs up and verifies username through the API and returns a
// logged-in client.
func (s *stack) activeUser(t *testing.T, username string) *http.Client {
	t.Helper()
	c := s.client(t)
	email := username + "@example.com"
	s.do(t, c, http.MethodPost, "/api/auth/signup",
		`{"username":"`+username+`","email":"`+email+`","password":"`+password+`"}`).expect(t, http.StatusCreated)
	token := s.mailedToken(t, mail.TemplateUserVerification, "/auth/verify/")
	s.do(t, c, http.MethodPost, "/api/auth/verify/"+token, "").expect(t, http.StatusCreated)
	s.do(t, c, http.MethodPost, "/api/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`).expect(t, http.StatusOK)
	return c
}
