package password

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Hasher is the hashing surface the Pool bounds.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Pool bounds the number of concurrent Argon2 computations. Each computation
// allocates Config.Memory KiB, so an unbounded burst of logins would otherwise
// exhaust memory and starve unrelated requests.
type Pool struct {
	hasher Hasher
	sem    *semaphore.Weighted
	size   int64
}

// NewPool wraps hasher so that at most size computations run at once.
// size <= 0 selects runtime.NumCPU().
func NewPool(hasher Hasher, size int) (*Pool, error) {
	if hasher == nil {
		return nil, errors.New("password pool requires a hasher")
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
	}, nil
}

// Hash waits for a free slot, then hashes password. It returns the context
// error when ctx ends before a slot frees, and the hasher's error otherwise.
// Safe for concurrent use.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.hasher.Hash(password)
}

// Verify waits for a free slot, then verifies password against encodedHash.
// A mismatch is (false, nil). Waiting fails with the context error like Hash.
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.hasher.Verify(password, encodedHash)
}

// NeedsUpgrade only parses the encoded hash, so it does not take a slot.
func (p *Pool) NeedsUpgrade(encodedHash string) (bool, error) {
	return p.hasher.NeedsUpgrade(encodedHash)
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return int(p.size)
}
