package main

import (
    "context"
    "fmt"
    "os"
    "sort"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/shopspring/decimal"

    "github.com/d60-Lab/payout-engine/config"
    "github.com/d60-Lab/payout-engine/internal/ledger"
    "github.com/d60-Lab/payout-engine/internal/model"
    "github.com/d60-Lab/payout-engine/internal/repository"
    "github.com/d60-Lab/payout-engine/internal/service"
    "github.com/d60-Lab/payout-engine/pkg/database"
)

// distbench 在内存账本上跑完整分发流程，统计单个分发的端到端耗时
func main() {
    cfg, err := config.Load()
    if err != nil { panic(err) }
    db, err := database.InitDB(cfg)
    if err != nil { panic(err) }
    defer database.Close(db)

    HOLDERS := 200
    if s := os.Getenv("HOLDERS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { HOLDERS = v } }
    REPEAT := 10
    if s := os.Getenv("REPEAT"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { REPEAT = v } }
    WORKERS := cfg.Distribution.PaymentWorkers
    if s := os.Getenv("WORKERS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { WORKERS = v } }
    var LATENCY time.Duration
    if s := os.Getenv("LATENCY"); s != "" { if v, e := time.ParseDuration(s); e == nil { LATENCY = v } }

    ctx := context.Background()
    mem := ledger.NewMemoryLedger()
    mem.SetLatency(LATENCY)

    project := &model.Project{
        ID:              uuid.NewString(),
        Name:            "distbench",
        AssetID:         "BENCH-" + uuid.NewString()[:8],
        TreasuryAddress: "bench-treasury",
    }
    projects := repository.NewProjectRepository(db)
    if err := projects.Create(ctx, project); err != nil { panic(err) }
    for i := 0; i < HOLDERS; i++ {
        mem.SetBalance(project.AssetID, fmt.Sprintf("bench-holder-%05d", i), decimal.NewFromInt(int64(1+i%97)))
    }
    mem.SetBalance(project.AssetID, project.TreasuryAddress, decimal.New(1, 30))

    distributions := repository.NewDistributionRepository(db)
    payments := repository.NewPaymentRepository(db)
    runner := service.NewRunner(REPEAT, 0)
    svc := service.NewDistributionService(service.DistributionDeps{
        Projects:       projects,
        Distributions:  distributions,
        Payments:       payments,
        Snapshot:       service.NewSnapshotReader(mem, nil, cfg.Distribution.SnapshotTimeout),
        Executor:       service.NewPaymentExecutor(mem, payments, cfg.Distribution.TransferTimeout),
        Scheduler:      runner,
        PaymentWorkers: WORKERS,
    })

    stop := runner.Start(cfg.Distribution.RunnerWorkers, svc.Process)
    st := time.Now()
    ids := make([]string, 0, REPEAT)
    for i := 0; i < REPEAT; i++ {
        d, err := svc.CreateDistribution(ctx, project.ID, decimal.NewFromInt(1_000_000_007), map[string]any{"bench": i})
        if err != nil { panic(err) }
        ids = append(ids, d.ID)
    }

    lat := make([]time.Duration, 0, REPEAT)
    timeout := time.After(10 * time.Minute)
    for len(lat) < REPEAT {
        select {
        case d := <-runner.Metrics():
            lat = append(lat, d)
        case <-timeout:
            fmt.Println("timed out waiting for distributions")
            os.Exit(1)
        }
    }
    wall := time.Since(st)
    _ = stop(ctx)

    completed := 0
    for _, id := range ids {
        d, err := distributions.GetByID(ctx, id)
        if err == nil && d.Status == model.DistributionStatusCompleted { completed++ }
    }

    pct := func(vs []time.Duration, p float64) time.Duration {
        xs := append([]time.Duration(nil), vs...)
        sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
        k := int(float64(len(xs))*p)
        if k < 0 { k = 0 }
        if k >= len(xs) { k = len(xs)-1 }
        return xs[k]
    }

    var sum time.Duration
    for _, d := range lat { sum += d }
    fmt.Printf("HOLDERS=%d REPEAT=%d WORKERS=%d LATENCY=%v\n", HOLDERS, REPEAT, WORKERS, LATENCY)
    fmt.Printf("Distribution: avg=%v p95=%v p99=%v wall=%v completed=%d/%d transfers=%d\n",
        sum/time.Duration(len(lat)), pct(lat, 0.95), pct(lat, 0.99), wall, completed, REPEAT, len(mem.Transfers()))
}
