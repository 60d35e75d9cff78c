// Command accessguard-loadtest measures hot-path throughput of the core
// against a Redis instance. With no -redis flag it spins up an embedded
// miniredis, which is enough for relative comparisons between builds.
//
//	go run ./cmd/accessguard-loadtest -workers 64 -ops 20000
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	accessguard "github.com/accessguard/accessguard"
	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/config"
	"github.com/accessguard/accessguard/permission"
)

type flatRoleStore struct{}

func (flatRoleStore) GetUserRoles(ctx context.Context, userID string) ([]permission.Role, error) {
	return []permission.Role{{ID: "r-bench", Name: "bench"}}, nil
}

func (flatRoleStore) HasPermission(ctx context.Context, roleID, code string) (bool, error) {
	return code == "bench.read", nil
}

func main() {
	var (
		redisAddr = flag.String("redis", "", "redis address (empty = embedded miniredis)")
		workers   = flag.Int("workers", 32, "concurrent workers per phase")
		ops       = flag.Int("ops", 10000, "operations per phase")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	addr := *redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal().Err(err).Msg("miniredis start failed")
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Info().Msg("using embedded miniredis")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	guard, err := accessguard.NewBuilder().
		WithRedis(rdb).
		WithRoleStore(flatRoleStore{}).
		WithSettings(config.NewStatic(map[string]string{
			"security:lockout:max_attempts": "1000000000",
		})).
		WithLogger(zerolog.Nop()).
		Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("guard build failed")
	}

	ctx := context.Background()

	runPhase(logger, "authorize", *workers, *ops, func(i int) error {
		if guard.Authorize(ctx, permission.Identity{Subject: "bench-user"}, "bench.read") != permission.Grant {
			return fmt.Errorf("unexpected deny")
		}
		return nil
	})

	type payload struct {
		N int `json:"n"`
	}
	var factoryRuns int64
	runPhase(logger, "cache get-or-set", *workers, *ops, func(i int) error {
		key := fmt.Sprintf("bench:%d", i%256)
		_, err := cache.GetOrSet(ctx, guard.Cache(), key, cache.Absolute(time.Minute), func(context.Context) (payload, error) {
			atomic.AddInt64(&factoryRuns, 1)
			return payload{N: i}, nil
		})
		return err
	})
	logger.Info().Int64("factory_runs", factoryRuns).Msg("cache phase factory executions")

	runPhase(logger, "lockout record failure", *workers, *ops, func(i int) error {
		_, _, _, err := guard.RecordFailedLogin(ctx, fmt.Sprintf("bench-user-%d", i%64))
		return err
	})

	runPhase(logger, "session upsert", *workers, *ops, func(i int) error {
		_, err := guard.RecordLoginSession(ctx,
			fmt.Sprintf("u-%d", i%128), fmt.Sprintf("dev-%d", i%4), "bench", "127.0.0.1")
		return err
	})
}

func runPhase(logger zerolog.Logger, name string, workers, ops int, op func(i int) error) {
	var (
		next   int64 = -1
		failed int64
		wg     sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= ops {
					return
				}
				if err := op(i); err != nil {
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	logger.Info().
		Str("phase", name).
		Int("ops", ops).
		Int64("failed", atomic.LoadInt64(&failed)).
		Dur("elapsed", elapsed).
		Float64("ops_per_sec", float64(ops)/elapsed.Seconds()).
		Msg("phase complete")
}
