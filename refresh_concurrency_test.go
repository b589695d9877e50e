package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	tokens := env.login(t, "alice@example.com", "Correct-Horse1")
	env.clock.Advance(16 * time.Minute)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	type outcome struct {
		access string
		err    error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			access, err := env.engine.RefreshAccessToken(context.Background(), tokens)
			results <- outcome{access: access, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var winner string
	success := 0
	for r := range results {
		if r.err == nil {
			success++
			winner = r.access
			continue
		}
		if errors.Is(r.err, ErrRefreshConflict) || errors.Is(r.err, ErrSessionNotFound) {
			continue
		}
		t.Fatalf("unexpected refresh error: %v", r.err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}

	user, err := env.engine.Authorize(context.Background(), TokenPair{AccessToken: winner, RefreshToken: tokens.RefreshToken}, RouteAuthenticated, nil)
	if err != nil || user == nil {
		t.Fatalf("winner's token should authorize, got %v %v", user, err)
	}
}

func TestGuardConcurrentRefreshIssuesOneCookie(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	tokens := env.login(t, "alice@example.com", "Correct-Horse1")
	env.clock.Advance(16 * time.Minute)

	const n = 8
	recorders := make([]*CookieRecorder, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		recorders[i] = &CookieRecorder{}
		go func(rec *CookieRecorder) {
			defer wg.Done()
			_, _ = env.engine.Authorize(context.Background(), tokens, RouteAuthenticated, rec)
		}(recorders[i])
	}
	wg.Wait()

	set := 0
	for _, rec := range recorders {
		if m, ok := rec.Last(DefaultAccessCookieName); ok && !m.Clear {
			set++
		}
	}
	if set != 1 {
		t.Fatalf("expected exactly one request to receive a new access cookie, got %d", set)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected one refresh success, got %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricRefreshConflict]+snap.Counters[MetricRefreshNotFound] != n-1 {
		t.Fatalf("expected %d losing refreshes, got %+v", n-1, snap.Counters)
	}
}

func TestRefreshOverwritePolicyLastWriterWins(t *testing.T) {
	cfg := testConfig()
	cfg.Session.ConflictPolicy = ConflictOverwrite
	env := newTestEnv(t, cfg)
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	tokens := env.login(t, "alice@example.com", "Correct-Horse1")
	ctx := context.Background()

	first, err := env.engine.RefreshAccessToken(ctx, tokens)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	second, err := env.engine.RefreshAccessToken(ctx, TokenPair{AccessToken: first, RefreshToken: tokens.RefreshToken})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if _, err := env.engine.RefreshAccessToken(ctx, TokenPair{AccessToken: first, RefreshToken: tokens.RefreshToken}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("overwritten token must no longer match, got %v", err)
	}
	if _, err := env.engine.sessionStore.FindByTokens(ctx, second, tokens.RefreshToken); err != nil {
		t.Fatalf("last writer's token must be canonical: %v", err)
	}
}
