package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/payout-engine/internal/repository"
	"github.com/d60-Lab/payout-engine/pkg/logger"
)

// RecoverySweeper 周期性认领长时间停留在 pending/processing 的分发并重新提交，
// 用于进程崩溃或队列满之后的恢复
type RecoverySweeper struct {
	distributions repository.DistributionRepository
	scheduler     Scheduler
	staleAfter    time.Duration
	batch         int
	interval      time.Duration
}

func NewRecoverySweeper(distributions repository.DistributionRepository, scheduler Scheduler, staleAfter time.Duration, batch int, interval time.Duration) *RecoverySweeper {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if batch <= 0 {
		batch = 32
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &RecoverySweeper{
		distributions: distributions,
		scheduler:     scheduler,
		staleAfter:    staleAfter,
		batch:         batch,
		interval:      interval,
	}
}

// Start 启动巡检循环；返回停止函数
func (s *RecoverySweeper) Start() func(context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := s.RunOnce(context.Background()); err != nil {
					logger.Warn("recovery sweep failed", zap.Error(err))
				}
			}
		}
	}()
	return func(ctx context.Context) error {
		close(stop)
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce 执行一次巡检，返回重新提交的分发数量
func (s *RecoverySweeper) RunOnce(ctx context.Context) (int, error) {
	stale, err := s.distributions.ClaimStale(ctx, time.Now().Add(-s.staleAfter), s.batch)
	if err != nil {
		return 0, fmt.Errorf("claim stale distributions: %w", err)
	}
	submitted := 0
	for _, d := range stale {
		if err := s.scheduler.Submit(d.ID); err != nil {
			if errors.Is(err, ErrQueueFull) {
				logger.Warn("runner queue full, stop sweeping", zap.Int("remaining", len(stale)-submitted))
				break
			}
			return submitted, err
		}
		submitted++
		logger.Info("resubmitted stale distribution",
			zap.String("distribution_id", d.ID),
			zap.String("status", string(d.Status)),
		)
	}
	return submitted, nil
}
