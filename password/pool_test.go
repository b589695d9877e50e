package password

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type slowHasher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (h *slowHasher) enter() {
	n := h.inFlight.Add(1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(h.delay)
	h.inFlight.Add(-1)
}

func (h *slowHasher) Hash(password string) (string, error) {
	h.enter()
	return "hash:" + password, nil
}

func (h *slowHasher) Verify(password, encodedHash string) (bool, error) {
	h.enter()
	return encodedHash == "hash:"+password, nil
}

func (h *slowHasher) NeedsUpgrade(string) (bool, error) { return false, nil }

func TestPoolBoundsConcurrency(t *testing.T) {
	h := &slowHasher{delay: 20 * time.Millisecond}
	pool, err := NewPool(h, 2)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Hash(context.Background(), "password"); err != nil {
				t.Errorf("Hash failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := h.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent computations, saw %d", peak)
	}
}

func TestPoolHonorsContextCancellation(t *testing.T) {
	h := &slowHasher{delay: 200 * time.Millisecond}
	pool, err := NewPool(h, 1)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = pool.Hash(context.Background(), "first")
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = pool.Verify(ctx, "second", "hash:second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while waiting for a slot, got %v", err)
	}
}

func TestPoolWithArgon2(t *testing.T) {
	hasher, err := NewArgon2(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	pool, err := NewPool(hasher, 0)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	if pool.Size() < 1 {
		t.Fatalf("expected default size >= 1, got %d", pool.Size())
	}

	hash, err := pool.Hash(context.Background(), "Passw0rd!")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	ok, err := pool.Verify(context.Background(), "Passw0rd!", hash)
	if err != nil || !ok {
		t.Fatalf("Verify failed: ok=%v err=%v", ok, err)
	}
}

func TestNewPoolRequiresHasher(t *testing.T) {
	if _, err := NewPool(nil, 1); err == nil {
		t.Fatal("expected nil hasher to be rejected")
	}
}
