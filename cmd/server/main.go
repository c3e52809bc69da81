package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/payout-engine/config"
	"github.com/d60-Lab/payout-engine/internal/api"
	"github.com/d60-Lab/payout-engine/internal/events"
	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/notifier"
	"github.com/d60-Lab/payout-engine/internal/repository"
	"github.com/d60-Lab/payout-engine/internal/service"
	"github.com/d60-Lab/payout-engine/pkg/cache"
	"github.com/d60-Lab/payout-engine/pkg/database"
	"github.com/d60-Lab/payout-engine/pkg/errtrack"
	"github.com/d60-Lab/payout-engine/pkg/logger"
	"github.com/d60-Lab/payout-engine/pkg/tracing"
)

var version = "dev"

// @title Payout Engine API
// @version 1.0
// @description 按持仓比例向代币持有人分红的分发服务
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	flush, err := errtrack.Init(cfg.Sentry, version)
	if err != nil {
		return err
	}
	defer flush()

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return err
	}

	codec, err := ledger.NewAddressCodec(cfg.Ledger.AddressFormat)
	if err != nil {
		return err
	}
	ledgerClient := ledger.NewHTTPClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, cfg.Ledger.Timeout,
		ledger.WithRateLimit(cfg.Ledger.RateLimit, cfg.Ledger.Burst))

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer func() { _ = publisher.Close() }()

	var alerts notifier.Notifier = notifier.Nop{}
	if cfg.Telegram.BotToken != "" {
		tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return err
		}
		alerts = tg
	}

	var locker service.Locker = service.NewLocalLocker()
	var queryCache *service.QueryCache
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		locker = service.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		queryCache = service.NewQueryCache(rdb, cfg.Redis.CacheTTL)
	}

	projects := repository.NewProjectRepository(db)
	distributions := repository.NewDistributionRepository(db)
	payments := repository.NewPaymentRepository(db)
	users := repository.NewUserRepository(db)

	runner := service.NewRunner(cfg.Distribution.QueueSize, 0)
	distService := service.NewDistributionService(service.DistributionDeps{
		Projects:       projects,
		Distributions:  distributions,
		Payments:       payments,
		Snapshot:       service.NewSnapshotReader(ledgerClient, codec, cfg.Distribution.SnapshotTimeout),
		Executor:       service.NewPaymentExecutor(ledgerClient, payments, cfg.Distribution.TransferTimeout),
		Scheduler:      runner,
		Locker:         locker,
		Events:         publisher,
		Notifier:       alerts,
		PaymentWorkers: cfg.Distribution.PaymentWorkers,
	})
	queryService := service.NewQueryService(distributions, payments, users, codec, queryCache)

	stopRunner := runner.Start(cfg.Distribution.RunnerWorkers, distService.Process)
	sweeper := service.NewRecoverySweeper(distributions, runner,
		cfg.Distribution.StaleAfter, cfg.Distribution.SweepBatch, cfg.Distribution.SweepInterval)
	stopSweeper := sweeper.Start()
	go drainFailures(runner)

	gin.SetMode(cfg.Server.Mode)
	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	router, err := api.NewRouter(api.RouterDeps{
		Distributions: distService,
		Queries:       queryService,
		Codec:         codec,
		JWTSecret:     cfg.JWT.Secret,
		JWTIssuer:     cfg.JWT.Issuer,
		ServiceName:   serviceName,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := stopSweeper(shutdownCtx); err != nil {
		logger.Warn("sweeper shutdown", zap.Error(err))
	}
	// 进行中的分发尽量跑完；未完成的由下次启动的恢复巡检接手
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := stopRunner(drainCtx); err != nil {
		logger.Warn("runner shutdown", zap.Error(err))
	}
	return nil
}

func drainFailures(r *service.Runner) {
	for f := range r.Failures() {
		logger.Error("distribution task failed",
			zap.String("distribution_id", f.DistributionID),
			zap.Bool("panicked", f.Panicked),
			zap.Error(f.Err),
		)
	}
}
