package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoginCreatesSessionWithRefreshExpiry(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice", "Alice@Example.com", "Correct-Horse1", UserStatusActive)

	rec := &CookieRecorder{}
	pub, err := env.engine.Login(context.Background(), "  ALICE@example.com ", "Correct-Horse1", rec)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pub.ID != "user-alice" || pub.Email != "alice@example.com" || len(pub.Roles) != 1 {
		t.Fatalf("unexpected public user %+v", pub)
	}

	access, _ := rec.Last(DefaultAccessCookieName)
	refresh, _ := rec.Last(DefaultRefreshCookieName)
	if access.Value == "" || refresh.Value == "" || access.Value == refresh.Value {
		t.Fatalf("expected distinct cookies, got %+v", rec.Mutations())
	}
	if len(refresh.Value) != 128 {
		t.Fatalf("expected 128 hex refresh token, got %d chars", len(refresh.Value))
	}

	sess, err := env.engine.sessionStore.FindByTokens(context.Background(), access.Value, refresh.Value)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	want := env.clock.Now().Add(time.Hour).UnixMilli()
	if sess.RefreshExpiresAt != want {
		t.Fatalf("expected refresh expiry %d, got %d", want, sess.RefreshExpiresAt)
	}
	if sess.UserID != "user-alice" {
		t.Fatalf("unexpected session owner %q", sess.UserID)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected one login success, got %d", got)
	}
}

func TestLoginPublicUserNeverCarriesHash(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)

	pub, err := env.engine.Login(context.Background(), "alice@example.com", "Correct-Horse1", nil)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	raw, err := json.Marshal(pub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "argon2") || strings.Contains(string(raw), "assword") {
		t.Fatalf("public projection leaked credentials: %s", raw)
	}

	full, err := json.Marshal(env.users.get("user-alice"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(full), "argon2") {
		t.Fatalf("User JSON leaked hash: %s", full)
	}
}

func TestLoginInvalidCredentialsIndistinguishable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	ctx := context.Background()

	wrongPass := &CookieRecorder{}
	_, errWrong := env.engine.Login(ctx, "alice@example.com", "Wrong-Horse1", wrongPass)

	unknown := &CookieRecorder{}
	_, errUnknown := env.engine.Login(ctx, "nobody@example.com", "Correct-Horse1", unknown)

	if !errors.Is(errWrong, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", errWrong, errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("failures must be identical: %q vs %q", errWrong, errUnknown)
	}
	if len(wrongPass.Mutations()) != 0 || len(unknown.Mutations()) != 0 {
		t.Fatal("failed login must not set cookies")
	}

	_, errEmpty := env.engine.Login(ctx, "alice@example.com", "", nil)
	if !errors.Is(errEmpty, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", errEmpty)
	}
}

func TestLoginPendingAccountRejected(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "bob", "bob@example.com", "Correct-Horse1", UserStatusPending)

	rec := &CookieRecorder{}
	_, err := env.engine.Login(context.Background(), "bob@example.com", "Correct-Horse1", rec)
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
	if len(rec.Mutations()) != 0 {
		t.Fatal("inactive login must not set cookies")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginInactive]; got != 1 {
		t.Fatalf("expected inactive counter 1, got %d", got)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Time = 2
	env := newTestEnv(t, cfg)
	env.seedUserWithHash(t, "carol", "carol@example.com", weakHash(t, "Correct-Horse1"), UserStatusActive)

	before := env.users.get("user-carol").PasswordHash
	if _, err := env.engine.Login(context.Background(), "carol@example.com", "Correct-Horse1", nil); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	after := env.users.get("user-carol").PasswordHash
	if after == before || !strings.Contains(after, "t=2") {
		t.Fatalf("expected upgraded hash, got %q", after)
	}

	if _, err := env.engine.Login(context.Background(), "carol@example.com", "Correct-Horse1", nil); err != nil {
		t.Fatalf("login with upgraded hash failed: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordHashUpgraded]; got != 1 {
		t.Fatalf("expected a single upgrade, got %d", got)
	}
}

func TestLoginKeepsHashWhenUpgradeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Time = 2
	cfg.Password.UpgradeOnLogin = false
	env := newTestEnv(t, cfg)
	env.seedUserWithHash(t, "dave", "dave@example.com", weakHash(t, "Abcdef1!"), UserStatusActive)

	before := env.users.get("user-dave").PasswordHash
	if _, err := env.engine.Login(context.Background(), "dave@example.com", "Abcdef1!", nil); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if after := env.users.get("user-dave").PasswordHash; after != before {
		t.Fatalf("hash rewritten with upgrades disabled: %q", after)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordHashUpgraded]; got != 0 {
		t.Fatalf("unexpected upgrade count %d", got)
	}
}

func TestLoginUserStoreFailurePropagates(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.users.findErr = errBoom

	_, err := env.engine.Login(context.Background(), "alice@example.com", "Correct-Horse1", nil)
	if !errors.Is(err, ErrUserStoreUnavailable) {
		t.Fatalf("expected ErrUserStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("store failures must not look like bad credentials")
	}
}

func TestLoginSessionStoreFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	env.mr.Close()

	rec := &CookieRecorder{}
	_, err := env.engine.Login(context.Background(), "alice@example.com", "Correct-Horse1", rec)
	if !errors.Is(err, ErrSessionStoreUnavailable) {
		t.Fatalf("expected ErrSessionStoreUnavailable, got %v", err)
	}
	if len(rec.Mutations()) != 0 {
		t.Fatal("cookies must not be set without a session")
	}
}
