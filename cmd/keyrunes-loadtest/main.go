// Command keyrunes-loadtest drives sustained login and authorization
// traffic through the SDK and reports latency percentiles per phase.
//
// With no -addr it spins up an in-process fake service, so the numbers
// isolate SDK and transport overhead. Point -addr at a real deployment to
// measure the full stack.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	keyrunes "github.com/keyrunes/keyrunes-go"
	"github.com/keyrunes/keyrunes-go/authcache"
	"github.com/keyrunes/keyrunes-go/keyrunestest"
)

const seedPassword = "load-correct-horse-9"

type seededUser struct {
	id       string
	username string
}

func main() {
	var (
		addr        = flag.String("addr", "", "service base URL; empty starts an in-process fake")
		users       = flag.Int("users", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (login + authorize)")
		group       = flag.String("group", "staff", "group the authorize phase checks")
		cacheSize   = flag.Int("cache-size", 0, "verdict cache entries; 0 runs uncached")
		cacheTTL    = flag.Duration("cache-ttl", time.Minute, "verdict cache TTL")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	baseURL := *addr
	var fake *keyrunestest.Server
	if baseURL == "" {
		fake = keyrunestest.New(keyrunestest.WithGroups(*group))
		defer fake.Close()
		baseURL = fake.URL
		fmt.Printf("using in-process fake at %s\n", baseURL)
	} else {
		fmt.Printf("using service at %s\n", baseURL)
	}

	client, err := keyrunes.New(baseURL,
		keyrunes.WithMetrics(true),
		keyrunes.WithLatencyHistograms(true),
		keyrunes.WithTimeout(10*time.Second),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	accounts, err := seedAccounts(ctx, client, fake, *users, *group)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	guard := keyrunes.RequireGroup(client, *group)
	if *cacheSize > 0 {
		cache, err := authcache.NewMemory(*cacheSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cache: %v\n", err)
			os.Exit(1)
		}
		guard = guard.WithCache(cache, *cacheTTL)
		fmt.Printf("authorize phase runs with a %d-entry cache, ttl %s\n", *cacheSize, *cacheTTL)
	}

	loginStats := runPhase(*ops, *concurrency, func() func() error {
		// Each worker logs in on its own session copy so tokens installed
		// here never race the shared client.
		session := client.WithToken("")
		return func() error {
			account := accounts[rand.IntN(len(accounts))]
			_, err := session.Login(ctx, account.username, seedPassword)
			return err
		}
	})

	authzStats := runPhase(*ops, *concurrency, func() func() error {
		return func() error {
			account := accounts[rand.IntN(len(accounts))]
			return guard.Authorize(ctx, account.id)
		}
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("authorize", authzStats)
	printMetrics(client)
}

// seedAccounts provisions the working set. The in-process fake is seeded
// directly with every second account in the checked group, so the authorize
// phase measures the allow and deny paths evenly. A remote service gets
// plain registrations; membership there is the operator's data.
func seedAccounts(ctx context.Context, client *keyrunes.Client, fake *keyrunestest.Server, n int, group string) ([]seededUser, error) {
	accounts := make([]seededUser, 0, n)
	for i := 0; i < n; i++ {
		username := fmt.Sprintf("load-user-%d", i)
		email := username + "@loadtest.invalid"

		if fake != nil {
			var groups []string
			if i%2 == 0 {
				groups = []string{group}
			}
			id := fake.SeedUser(username, email, seedPassword, groups...)
			accounts = append(accounts, seededUser{id: id, username: username})
			continue
		}

		user, err := client.Register(ctx, keyrunes.RegisterRequest{
			Username: username,
			Email:    email,
			Password: seedPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", username, err)
		}
		accounts = append(accounts, seededUser{id: user.ID, username: username})
	}
	return accounts, nil
}

// runPhase fans ops operations out over concurrency workers. newOp runs once
// per worker so each can carry private state (sessions, RNG). Denied verdicts
// are complete round trips and keep their latency samples; hard failures are
// counted and their samples dropped.
func runPhase(ops, concurrency int, newOp func() func() error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		denials   atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op := newOp()
			for cursor.Add(1) <= int64(ops) {
				t0 := time.Now()
				err := op()
				d := time.Since(t0)
				switch {
				case err == nil:
				case isDenial(err):
					denials.Add(1)
				default:
					failures.Add(1)
					continue
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load(), denials.Load())
}

func isDenial(err error) bool {
	return errors.Is(err, keyrunes.ErrAuthorization) || errors.Is(err, keyrunes.ErrUserNotFound)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	denials  int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures, denials int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures, denials: denials}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		denials:  denials,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case len(sorted) == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d denials=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.denials,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func printMetrics(client *keyrunes.Client) {
	fmt.Printf("client metrics: logins=%d login_failures=%d allowed=%d denied=%d cache_hits=%d cache_misses=%d request_errors=%d\n",
		client.MetricValue(keyrunes.MetricLoginSuccess),
		client.MetricValue(keyrunes.MetricLoginFailure),
		client.MetricValue(keyrunes.MetricAuthzAllowed),
		client.MetricValue(keyrunes.MetricAuthzDenied),
		client.MetricValue(keyrunes.MetricCacheHit),
		client.MetricValue(keyrunes.MetricCacheMiss),
		client.MetricValue(keyrunes.MetricRequestError),
	)
}
