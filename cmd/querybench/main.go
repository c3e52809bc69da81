package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/payout-engine/config"
	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/model"
	"github.com/d60-Lab/payout-engine/internal/repository"
	"github.com/d60-Lab/payout-engine/internal/service"
	"github.com/d60-Lab/payout-engine/pkg/cache"
	"github.com/d60-Lab/payout-engine/pkg/database"
)

// querybench 对比终态分发汇总查询在有无 Redis 缓存时的延迟
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	defer database.Close(db)

	payments := envInt("PAYMENTS", 5000)
	requests := envInt("REQUESTS", 2000)

	fmt.Println("Setting up test data...")
	distributions := repository.NewDistributionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	users := repository.NewUserRepository(db)

	now := time.Now()
	dist := &model.Distribution{
		ID:             uuid.NewString(),
		ProjectID:      uuid.NewString(),
		AssetID:        "QBENCH",
		SourceAddress:  "qbench-treasury",
		TotalAmount:    decimal.NewFromInt(int64(payments) * 1000),
		Status:         model.DistributionStatusCompleted,
		HolderCount:    payments,
		CompletedCount: payments,
		CompletedAt:    &now,
	}
	mustDo(distributions.Create(ctx, dist))
	rows := make([]*model.Payment, payments)
	for i := range rows {
		tx := fmt.Sprintf("qbench-tx-%06d", i)
		rows[i] = &model.Payment{
			DistributionID: dist.ID,
			HolderAddress:  fmt.Sprintf("qbench-holder-%06d", i),
			Balance:        decimal.NewFromInt(1),
			Amount:         decimal.NewFromInt(1000),
			Status:         model.PaymentStatusCompleted,
			TxID:           &tx,
			AttemptedAt:    &now,
		}
	}
	mustDo(paymentRepo.CreateBatch(ctx, rows))

	codec := ledger.RawCodec{}
	noCache := run(ctx, service.NewQueryService(distributions, paymentRepo, users, codec, nil), dist.ID, requests)
	fmt.Println("\nDistribution summary latency")
	report("No cache", noCache, "")

	client, err := cache.NewRedis(cfg.Redis)
	if err != nil || client == nil {
		fmt.Println("redis not configured, skip cached run")
		return
	}
	defer client.Close()
	client.Del(ctx, "distribution:"+dist.ID, "distribution:summary:"+dist.ID)

	qc := service.NewQueryCache(client, cfg.Redis.CacheTTL)
	cached := run(ctx, service.NewQueryService(distributions, paymentRepo, users, codec, qc), dist.ID, requests)
	hits, misses := qc.Stats()
	report("Redis cache", cached, fmt.Sprintf("hits=%d misses=%d mem=%s", hits, misses, formatBytes(redisMemory(ctx, client))))
}

func run(ctx context.Context, svc service.QueryService, id string, n int) []time.Duration {
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		if _, err := svc.GetDistributionSummary(ctx, id); err != nil {
			panic(err)
		}
		out = append(out, time.Since(start))
	}
	return out
}

func report(name string, ds []time.Duration, extra string) {
	fmt.Printf("%-14s avg=%v p95=%v p99=%v %s\n", name, avg(ds), pct(ds, 0.95), pct(ds, 0.99), extra)
}

// redisMemory 读取 INFO memory 中的 used_memory
func redisMemory(ctx context.Context, client *redis.Client) int64 {
	info, err := client.Info(ctx, "memory").Result()
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
