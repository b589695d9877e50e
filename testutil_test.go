package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/accounts/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testWebBaseURL = "https://app.example.com"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testUserStore struct {
	mu    sync.Mutex
	users map[string]*User

	findByIDErr error
	findErr     error
}

func newTestUserStore() *testUserStore {
	return &testUserStore{users: map[string]*User{}}
}

func (s *testUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findByIDErr != nil {
		return nil, s.findByIDErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *testUserStore) find(match func(*User) bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *testUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	return s.find(func(u *User) bool { return u.Email == email })
}

func (s *testUserStore) FindByUsername(_ context.Context, username string) (*User, error) {
	return s.find(func(u *User) bool { return u.Username == username })
}

func (s *testUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
		if existing.Username == u.Username {
			return ErrDuplicateUsername
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *testUserStore) UpdateStatus(_ context.Context, id string, status UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (s *testUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *testUserStore) get(id string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

type sentMail struct {
	To       string
	Username string
	Link     string
}

type testMailer struct {
	mu            sync.Mutex
	verifications []sentMail
	resets        []sentMail
	err           error
}

func (m *testMailer) SendUserVerification(_ context.Context, to, username, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verifications = append(m.verifications, sentMail{To: to, Username: username, Link: link})
	return nil
}

func (m *testMailer) SendPasswordReset(_ context.Context, to, username, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resets = append(m.resets, sentMail{To: to, Username: username, Link: link})
	return nil
}

func (m *testMailer) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *testMailer) lastVerificationToken(tb testing.TB) string {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verifications) == 0 {
		tb.Fatal("no verification mail sent")
	}
	return tokenFromLink(tb, m.verifications[len(m.verifications)-1].Link, "/auth/verify/")
}

func (m *testMailer) lastResetToken(tb testing.TB) string {
	tb.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		tb.Fatal("no reset mail sent")
	}
	return tokenFromLink(tb, m.resets[len(m.resets)-1].Link, "/auth/reset-password/")
}

func tokenFromLink(tb testing.TB, link, path string) string {
	tb.Helper()
	prefix := testWebBaseURL + path
	if !strings.HasPrefix(link, prefix) {
		tb.Fatalf("unexpected link %q", link)
	}
	return strings.TrimPrefix(link, prefix)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "accounts-test"
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.Session.RefreshTTL = time.Hour
	cfg.Session.RowRetention = time.Hour
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Links.WebBaseURL = testWebBaseURL
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *testUserStore
	mailer *testMailer
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEnv(tb testing.TB, cfg Config, opts ...func(*Builder)) *testEnv {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &testEnv{
		users:  newTestUserStore(),
		mailer: &testMailer{},
		clock:  newTestClock(),
		mr:     mr,
		rdb:    rdb,
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithMailer(env.mailer).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		tb.Fatalf("build engine: %v", err)
	}
	env.engine = engine

	tb.Cleanup(func() {
		_ = engine.Close(context.Background())
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// seedUser stores a user whose password hash is computed with the engine's
// own parameters.
func (env *testEnv) seedUser(tb testing.TB, username, email, pass string, status UserStatus) *User {
	tb.Helper()
	hash, err := env.engine.passwords.Hash(context.Background(), pass)
	if err != nil {
		tb.Fatalf("hash: %v", err)
	}
	return env.seedUserWithHash(tb, username, email, hash, status)
}

func (env *testEnv) seedUserWithHash(tb testing.TB, username, email, hash string, status UserStatus) *User {
	tb.Helper()
	now := env.clock.Now()
	u := &User{
		ID:           "user-" + username,
		Username:     NormalizeIdentifier(username),
		Email:        NormalizeIdentifier(email),
		PasswordHash: hash,
		Status:       status,
		Roles:        []string{RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := env.users.Create(context.Background(), u); err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// login logs in and returns the cookie pair that was set.
func (env *testEnv) login(tb testing.TB, email, pass string) TokenPair {
	tb.Helper()
	rec := &CookieRecorder{}
	if _, err := env.engine.Login(context.Background(), email, pass, rec); err != nil {
		tb.Fatalf("login: %v", err)
	}
	access, ok := rec.Last(DefaultAccessCookieName)
	if !ok || access.Clear || access.Value == "" {
		tb.Fatalf("access cookie not set: %+v", rec.Mutations())
	}
	refresh, ok := rec.Last(DefaultRefreshCookieName)
	if !ok || refresh.Clear || refresh.Value == "" {
		tb.Fatalf("refresh cookie not set: %+v", rec.Mutations())
	}
	return TokenPair{AccessToken: access.Value, RefreshToken: refresh.Value}
}

func weakHash(tb testing.TB, pass string) string {
	tb.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		tb.Fatalf("argon2: %v", err)
	}
	hash, err := h.Hash(pass)
	if err != nil {
		tb.Fatalf("hash: %v", err)
	}
	return hash
}

var errBoom = errors.New("boom")
