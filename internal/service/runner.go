package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/payout-engine/pkg/logger"
)

// ProcessFunc 处理一个分发
type ProcessFunc func(ctx context.Context, distributionID string) error

// Scheduler 提交分发处理任务，不阻塞调用方
type Scheduler interface {
	Submit(distributionID string) error
}

// RunnerFailure 处理失败或 panic 的任务
type RunnerFailure struct {
	DistributionID string
	Err            error
	Panicked       bool
	At             time.Time
}

type runJob struct {
	distributionID string
	enqAt          time.Time
}

// Runner 本地异步执行器：有界队列 + 固定数量 worker
type Runner struct {
	ch         chan runJob
	failures   chan RunnerFailure
	metricsCh  chan time.Duration
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

// NewRunner jobTimeout 为单个分发处理的最长时间，<=0 表示不限制
func NewRunner(queueSize int, jobTimeout time.Duration) *Runner {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Runner{
		ch:         make(chan runJob, queueSize),
		failures:   make(chan RunnerFailure, 256),
		metricsCh:  make(chan time.Duration, 65536),
		jobTimeout: jobTimeout,
	}
}

// Start 启动 worker，返回停止函数。停止后不再领取新任务，
// 正在执行的分发会跑完（受 ctx 限制等待时间）；队列中剩余任务由恢复巡检重新提交。
func (r *Runner) Start(workers int, fn ProcessFunc) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-stopCh:
					return
				default:
				}
				select {
				case job := <-r.ch:
					r.run(job, fn)
				case <-stopCh:
					return
				}
			}
		}()
	}

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stopCh) })
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			if n := len(r.ch); n > 0 {
				logger.Warn("runner stopped with queued distributions", zap.Int("queued", n))
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("runner stop: %w", ctx.Err())
		}
	}
}

func (r *Runner) run(job runJob, fn ProcessFunc) {
	ctx := context.Background()
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			hub := sentry.CurrentHub().Clone()
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("distribution_id", job.distributionID)
			})
			hub.Recover(rec)
			logger.Error("distribution processing panicked",
				zap.String("distribution_id", job.distributionID),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			r.fail(RunnerFailure{
				DistributionID: job.distributionID,
				Err:            fmt.Errorf("panic: %v", rec),
				Panicked:       true,
				At:             time.Now(),
			})
		}
	}()

	if err := fn(ctx, job.distributionID); err != nil {
		logger.Warn("distribution processing failed",
			zap.String("distribution_id", job.distributionID),
			zap.Error(err),
		)
		r.fail(RunnerFailure{DistributionID: job.distributionID, Err: err, At: time.Now()})
	}

	if !job.enqAt.IsZero() {
		select {
		case r.metricsCh <- time.Since(job.enqAt):
		default:
		}
	}
}

func (r *Runner) fail(f RunnerFailure) {
	select {
	case r.failures <- f:
	default:
		logger.Warn("runner failure channel full, drop", zap.String("distribution_id", f.DistributionID))
	}
}

// Submit 入队；队列已满时返回 ErrQueueFull，分发保持 pending 等待恢复巡检
func (r *Runner) Submit(distributionID string) error {
	select {
	case r.ch <- runJob{distributionID: distributionID, enqAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Failures 返回失败任务的只读通道
func (r *Runner) Failures() <-chan RunnerFailure { return r.failures }

// Metrics 返回入队到处理完成耗时的只读通道
func (r *Runner) Metrics() <-chan time.Duration { return r.metricsCh }

// QueueLen 当前队列长度（采样值）
func (r *Runner) QueueLen() int { return len(r.ch) }
