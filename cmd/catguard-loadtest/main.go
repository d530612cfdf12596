// Command catguard-loadtest measures counter-store throughput for the two
// hot paths every guarded request touches: the rate-limit check and the IP
// block-list check. It runs against a real Redis when -redis-addr (or
// REDIS_ADDR) is set, else against an embedded miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tyhsiao/catguard"
)

func main() {
	var (
		identities  = flag.Int("identities", 100000, "number of distinct rate-limit identities")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	cfg := catguard.Config{}
	cfg.Session.Secret = []byte("loadtest-secret-loadtest-secret-1234")
	// High budget so the phase measures store throughput, not rejections.
	cfg.Limits.Default = catguard.Limit{Max: 1 << 30, Window: time.Hour}

	engine, err := catguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(noAccounts{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ids := make([]catguard.Identity, *identities)
	for i := range ids {
		ids[i] = catguard.IdentityFromIP(fmt.Sprintf("10.%d.%d.%d", i>>16&0xFF, i>>8&0xFF, i&0xFF))
	}

	fmt.Printf("seeding %d blocked ips...\n", *identities/10)
	startSeed := time.Now()
	for i := 0; i < *identities/10; i++ {
		engine.BlockIP(ctx, ids[i].IP, time.Hour)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	allowStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		decision := engine.AllowRequest(ctx, ids[r.Intn(len(ids))])
		if !decision.Allowed {
			return fmt.Errorf("unexpected throttle")
		}
		return nil
	})
	blockStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.IPBlockRemaining(ctx, ids[r.Intn(len(ids))].IP)
		return err
	})

	fmt.Println("---- results ----")
	printStats("allow", allowStats)
	printStats("blockcheck", blockStats)
}

// noAccounts satisfies the store interface for flows this loadtest never
// exercises.
type noAccounts struct{}

func (noAccounts) Load(context.Context, string) (*catguard.Account, error) {
	return nil, catguard.ErrAccountNotFound
}

func (noAccounts) Save(context.Context, *catguard.Account) error { return nil }

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
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
				t0 := time.Now()
				err := op(r)
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
