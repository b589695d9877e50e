// Command accounts-loadtest drives the engine's guard against Redis. It
// seeds logged-in sessions, measures Authorize on valid access tokens, then
// races concurrent silent refreshes on the same pair and checks that each
// round has at most one winner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/accounts"
	"github.com/MrEthical07/accounts/mail"
	"github.com/MrEthical07/accounts/password"
	"github.com/MrEthical07/accounts/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const loadPassword = "Load7est!pass"

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of logged-in sessions to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "authorize operations")
		racers      = flag.Int("racers", 8, "concurrent refreshes per session in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		overwrite   = flag.Bool("overwrite", false, "use the last-writer-wins conflict policy")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and racers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := accounts.DefaultConfig()
	cfg.JWT.Secret = []byte("accounts-loadtest-secret-0123456789")
	cfg.JWT.Issuer = "accounts-loadtest"
	cfg.Links.WebBaseURL = "http://localhost"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.EnableLatencyHistograms = true
	if *overwrite {
		cfg.Session.ConflictPolicy = accounts.ConflictOverwrite
	}

	users := memory.NewUserStore()
	engine, err := accounts.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithMailer(mail.NewRecorder(nil)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = engine.Close(ctx) }()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	pairs, err := seed(ctx, engine, users, cfg.Password, *sessions, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authorizeStats := runAuthorizePhase(ctx, engine, pairs, *ops, *concurrency)
	raceStats, multiWinners := runRacePhase(ctx, engine, pairs, *racers, *concurrency)

	fmt.Println("---- results ----")
	printStats("authorize", authorizeStats)
	printStats("refresh-race", raceStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("refresh: success=%d conflict=%d not_found=%d\n",
		snap.Counters[accounts.MetricRefreshSuccess],
		snap.Counters[accounts.MetricRefreshConflict],
		snap.Counters[accounts.MetricRefreshNotFound],
	)
	if !*overwrite && multiWinners > 0 {
		fmt.Fprintf(os.Stderr, "%d sessions had more than one refresh winner\n", multiWinners)
		os.Exit(1)
	}
}

func seed(
	ctx context.Context,
	engine *accounts.Engine,
	users *memory.UserStore,
	pc accounts.PasswordConfig,
	n, concurrency int,
) ([]accounts.TokenPair, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pairs := make([]accounts.TokenPair, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			email := fmt.Sprintf("load-%d@example.com", i)
			err := users.Create(gctx, &accounts.User{
				ID:           fmt.Sprintf("load-%d", i),
				Username:     fmt.Sprintf("load%d", i),
				Email:        email,
				PasswordHash: hash,
				Status:       accounts.UserStatusActive,
				Roles:        []string{accounts.RoleUser},
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				return err
			}

			rec := &accounts.CookieRecorder{}
			if _, err := engine.Login(gctx, email, loadPassword, rec); err != nil {
				return err
			}
			access, _ := rec.Last(accounts.DefaultAccessCookieName)
			refresh, _ := rec.Last(accounts.DefaultRefreshCookieName)
			pairs[i] = accounts.TokenPair{AccessToken: access.Value, RefreshToken: refresh.Value}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func runAuthorizePhase(ctx context.Context, engine *accounts.Engine, pairs []accounts.TokenPair, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				pair := pairs[r.Intn(len(pairs))]
				t0 := time.Now()
				_, err := engine.Authorize(ctx, pair, accounts.RouteAuthenticated, nil)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRacePhase fires racers concurrent refreshes at every session and
// returns how many sessions saw more than one success.
func runRacePhase(ctx context.Context, engine *accounts.Engine, pairs []accounts.TokenPair, racers, concurrency int) (phaseStats, int) {
	var (
		failures     int64
		multiWinners int64
		latencies    = make([]time.Duration, 0, len(pairs)*racers)
		mu           sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for _, pair := range pairs {
		g.Go(func() error {
			var (
				inner   sync.WaitGroup
				winners int64
				gate    = make(chan struct{})
			)
			for r := 0; r < racers; r++ {
				inner.Add(1)
				go func() {
					defer inner.Done()
					<-gate
					t0 := time.Now()
					_, err := engine.RefreshAccessToken(gctx, pair)
					d := time.Since(t0)
					switch {
					case err == nil:
						atomic.AddInt64(&winners, 1)
					case errors.Is(err, accounts.ErrRefreshConflict), errors.Is(err, accounts.ErrSessionNotFound):
					default:
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				}()
			}
			close(gate)
			inner.Wait()
			if winners > 1 {
				atomic.AddInt64(&multiWinners, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures), int(multiWinners)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
