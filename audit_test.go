package accounts

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func auditConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func collectEvents(t *testing.T, sink *ChannelSink, n int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events: %+v", len(out), n, out)
		}
	}
	return out
}

func TestAuditLoginEventFields(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := env.engine.Login(ctx, "alice@example.com", "Correct-Horse1", nil); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Wrong-Horse1", nil); err == nil {
		t.Fatal("expected failure")
	}

	events := collectEvents(t, sink, 2)
	ok, fail := events[0], events[1]
	if ok.EventType != "login_success" || !ok.Success || ok.UserID != "user-alice" || ok.SessionID == "" {
		t.Fatalf("unexpected success event %+v", ok)
	}
	if ok.IP != "203.0.113.7" {
		t.Fatalf("expected client ip on event, got %q", ok.IP)
	}
	if fail.EventType != "login_failure" || fail.Success || fail.Error != "invalid_credentials" {
		t.Fatalf("unexpected failure event %+v", fail)
	}
	if fail.Metadata["reason"] != "password_mismatch" {
		t.Fatalf("unexpected metadata %+v", fail.Metadata)
	}
}

func TestAuditRefreshRejectedCarriesReason(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	tokens := env.login(t, "alice@example.com", "Correct-Horse1")
	collectEvents(t, sink, 1)

	env.clock.Advance(2 * time.Hour)
	_, _ = env.engine.Authorize(context.Background(), tokens, RouteAuthenticated, nil)

	ev := collectEvents(t, sink, 1)[0]
	if ev.EventType != "refresh_rejected" || ev.Error != "session_expired" || ev.Metadata["reason"] != "session_expired" {
		t.Fatalf("unexpected refresh event %+v", ev)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	out := &syncBuffer{}
	env := newTestEnv(t, auditConfig(), func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(out)) })
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, signupRequest()); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	verifyToken := env.mailer.lastVerificationToken(t)
	if err := env.engine.Verify(ctx, verifyToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	tokens := env.login(t, "dave@example.com", "Correct-Horse1")
	env.clock.Advance(16 * time.Minute)
	if _, err := env.engine.Authorize(ctx, tokens, RouteAuthenticated, nil); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	env.engine.Logout(ctx, tokens, nil)

	if err := env.engine.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	logged := out.String()
	for _, secret := range []string{"Correct-Horse1", verifyToken, tokens.AccessToken, tokens.RefreshToken} {
		if strings.Contains(logged, secret) {
			t.Fatalf("audit output leaked a secret: %s", logged)
		}
	}
	for _, want := range []string{"signup", "verification_request", "verification_confirm", "login_success", "refresh_success", "logout"} {
		if !strings.Contains(logged, `"event_type":"`+want+`"`) {
			t.Fatalf("missing %s event in %s", want, logged)
		}
	}
}

func TestAuditDisabledSkipsSink(t *testing.T) {
	sink := NewChannelSink(4)
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	env.seedUser(t, "alice", "alice@example.com", "Correct-Horse1", UserStatusActive)
	env.login(t, "alice@example.com", "Correct-Horse1")

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event with audit disabled: %+v", ev)
	default:
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("expected no drops")
	}
}
