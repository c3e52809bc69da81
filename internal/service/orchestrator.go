package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/d60-Lab/payout-engine/internal/events"
	"github.com/d60-Lab/payout-engine/internal/model"
	"github.com/d60-Lab/payout-engine/internal/notifier"
	"github.com/d60-Lab/payout-engine/internal/repository"
	"github.com/d60-Lab/payout-engine/pkg/logger"
)

// DistributionService 分发生命周期：创建、处理、恢复
type DistributionService interface {
	// CreateDistribution 校验金额、创建 pending 分发并异步提交处理
	CreateDistribution(ctx context.Context, projectID string, amount decimal.Decimal, metadata map[string]any) (*model.Distribution, error)
	// Process 执行快照、分配、批量建单、转账和状态汇总；对终态分发是空操作
	Process(ctx context.Context, distributionID string) error
	// Resume 重新提交未到终态的分发，只会执行仍为 pending 的 Payment
	Resume(ctx context.Context, distributionID string) (*model.Distribution, error)
}

// DistributionDeps 分发服务依赖
type DistributionDeps struct {
	Projects      repository.ProjectRepository
	Distributions repository.DistributionRepository
	Payments      repository.PaymentRepository
	Snapshot      *SnapshotReader
	Executor      *PaymentExecutor
	Scheduler     Scheduler
	Locker        Locker
	Events        events.Publisher
	Notifier      notifier.Notifier
	// PaymentWorkers 单个分发内并发转账数
	PaymentWorkers int
}

type distributionService struct {
	projects       repository.ProjectRepository
	distributions  repository.DistributionRepository
	payments       repository.PaymentRepository
	snapshot       *SnapshotReader
	executor       *PaymentExecutor
	scheduler      Scheduler
	locker         Locker
	events         events.Publisher
	notifier       notifier.Notifier
	paymentWorkers int
}

func NewDistributionService(deps DistributionDeps) DistributionService {
	s := &distributionService{
		projects:       deps.Projects,
		distributions:  deps.Distributions,
		payments:       deps.Payments,
		snapshot:       deps.Snapshot,
		executor:       deps.Executor,
		scheduler:      deps.Scheduler,
		locker:         deps.Locker,
		events:         deps.Events,
		notifier:       deps.Notifier,
		paymentWorkers: deps.PaymentWorkers,
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.notifier == nil {
		s.notifier = notifier.Nop{}
	}
	if s.paymentWorkers <= 0 {
		s.paymentWorkers = 8
	}
	return s
}

func (s *distributionService) CreateDistribution(ctx context.Context, projectID string, amount decimal.Decimal, metadata map[string]any) (*model.Distribution, error) {
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	project, err := s.projects.GetByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}

	d := &model.Distribution{
		ProjectID:     project.ID,
		AssetID:       project.AssetID,
		SourceAddress: project.TreasuryAddress,
		TotalAmount:   amount,
		Status:        model.DistributionStatusPending,
	}
	if metadata != nil {
		d.Metadata = datatypes.JSONMap(metadata)
	}
	if err := s.distributions.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create distribution: %w", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Submit(d.ID); err != nil {
			// 行已落库，恢复巡检会重新提交
			logger.Warn("submit distribution failed, left for recovery",
				zap.String("distribution_id", d.ID),
				zap.Error(err),
			)
		}
	}
	logger.Info("distribution created",
		zap.String("distribution_id", d.ID),
		zap.String("project_id", d.ProjectID),
		zap.String("amount", amount.String()),
	)
	return d, nil
}

func (s *distributionService) Resume(ctx context.Context, distributionID string) (*model.Distribution, error) {
	d, err := s.getDistribution(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: distribution %s is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	if s.scheduler == nil {
		return nil, fmt.Errorf("%w: no scheduler", ErrQueueFull)
	}
	if err := s.scheduler.Submit(d.ID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *distributionService) Process(ctx context.Context, distributionID string) (err error) {
	ctx, span := tracer.Start(ctx, "distribution.process", trace.WithAttributes(attribute.String("distribution.id", distributionID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lease, ok, err := s.locker.TryLock(ctx, lockKey(distributionID))
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("distribution is being processed elsewhere", zap.String("distribution_id", distributionID))
		return nil
	}
	defer lease.Release()

	d, err := s.getDistribution(ctx, distributionID)
	if err != nil {
		return err
	}
	if d.Status.IsTerminal() {
		return nil
	}
	if d.Status == model.DistributionStatusPending {
		now := time.Now()
		moved, err := s.distributions.MarkProcessing(ctx, d.ID, now)
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		if !moved {
			if d, err = s.getDistribution(ctx, distributionID); err != nil {
				return err
			}
			if d.Status.IsTerminal() {
				return nil
			}
		}
		d.Status = model.DistributionStatusProcessing
		d.ProcessingStartedAt = &now
	}

	payments, err := s.ensurePayments(ctx, d)
	if err != nil {
		var abort *abortError
		if errors.As(err, &abort) {
			return s.abort(ctx, d, abort.err)
		}
		return err
	}

	if err := s.executePending(ctx, d, payments, lease.Lost()); err != nil {
		return err
	}
	return s.finish(ctx, d)
}

// abortError 生成 Payment 之前的失败，分发直接进入 failed
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// ensurePayments 首次处理时快照、分配并单事务写入全部 Payment；恢复处理时沿用已有 Payment
func (s *distributionService) ensurePayments(ctx context.Context, d *model.Distribution) ([]*model.Payment, error) {
	count, err := s.payments.CountByDistribution(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("count payments: %w", err)
	}
	if count == 0 {
		holders, err := s.snapshot.Snapshot(ctx, d.AssetID)
		if err != nil {
			return nil, &abortError{err: err}
		}
		// 出资账户自身不参与分配
		source := s.snapshot.Normalize(d.SourceAddress)
		eligible := holders[:0]
		for _, h := range holders {
			if h.Address != source {
				eligible = append(eligible, h)
			}
		}
		allocations, err := Allocate(eligible, d.TotalAmount)
		if err != nil {
			return nil, &abortError{err: err}
		}

		now := time.Now()
		batch := make([]*model.Payment, len(allocations))
		for i, a := range allocations {
			batch[i] = &model.Payment{
				DistributionID: d.ID,
				HolderAddress:  a.Address,
				Balance:        a.Balance,
				Amount:         a.Amount,
				Status:         model.PaymentStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
		}
		if err := s.payments.CreateBatch(ctx, batch); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create payments: %w", err)
		}
		logger.Info("distribution allocated",
			zap.String("distribution_id", d.ID),
			zap.Int("holders", len(holders)),
			zap.Int("payments", len(batch)),
		)
	}

	if err := s.failUnsettled(ctx, d); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByDistribution(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// failUnsettled 处理此前执行者已认领但未落库结果的 Payment：转账可能已经发出，
// 不再重发，置为 failed(outcome_unknown) 交由运营按 reference 对账。
// 认领时间不足两倍转账超时的仍可能在途，留待下次处理。
func (s *distributionService) failUnsettled(ctx context.Context, d *model.Distribution) error {
	now := time.Now()
	detail := fmt.Sprintf("transfer outcome unknown; reconcile with ledger reference %s:<holder>", d.ID)
	n, err := s.payments.FailUnsettled(ctx, d.ID, now.Add(-2*s.executor.Timeout()), model.PaymentErrorOutcomeUnknown, detail, now)
	if err != nil {
		return fmt.Errorf("fail unsettled payments: %w", err)
	}
	if n > 0 {
		logger.Error("payments with unknown transfer outcome",
			zap.String("distribution_id", d.ID),
			zap.Int64("count", n),
		)
	}
	return nil
}

// executePending 以有界并发执行尚未认领的 pending Payment；单笔转账失败不影响其它转账。
// 锁丢失或出现并发执行者时停止发起新的转账，已在途的转账照常落库。
func (s *distributionService) executePending(ctx context.Context, d *model.Distribution, payments []*model.Payment, lost <-chan struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.paymentWorkers)
	var stopped error
schedule:
	for _, p := range payments {
		if p.Status != model.PaymentStatusPending || p.AttemptedAt != nil {
			continue
		}
		select {
		case <-lost:
			stopped = ErrLockLost
			break schedule
		case <-gctx.Done():
			break schedule
		default:
		}
		order := PaymentOrder{
			DistributionID: d.ID,
			AssetID:        d.AssetID,
			From:           d.SourceAddress,
			To:             p.HolderAddress,
			Amount:         p.Amount,
		}
		g.Go(func() error {
			out, err := s.executor.Run(ctx, order)
			if errors.Is(err, ErrPaymentClaimed) {
				logger.Warn("payment claimed by another executor, skip",
					zap.String("distribution_id", order.DistributionID),
					zap.String("holder", order.To),
				)
				return nil
			}
			if err != nil {
				return err
			}
			if err := s.distributions.Touch(ctx, order.DistributionID, time.Now()); err != nil {
				logger.Warn("touch distribution failed", zap.String("distribution_id", order.DistributionID), zap.Error(err))
			}
			if out.Err != nil {
				logger.Warn("payment failed",
					zap.String("distribution_id", order.DistributionID),
					zap.String("holder", order.To),
					zap.String("code", out.ErrorCode),
					zap.Error(out.Err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("execute payments: %w", err)
	}
	if stopped == nil {
		select {
		case <-lost:
			stopped = ErrLockLost
		default:
		}
	}
	if stopped != nil {
		return fmt.Errorf("execute payments of %s: %w", d.ID, stopped)
	}
	return nil
}

// finish 按 Payment 状态汇总终态：全部成功为 completed，否则 failed
func (s *distributionService) finish(ctx context.Context, d *model.Distribution) error {
	payments, err := s.payments.ListByDistribution(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	tally := tallyPayments(payments)
	if tally.Pending > 0 {
		return fmt.Errorf("%w: %d payments still pending", ErrInvalidTransition, tally.Pending)
	}

	status := model.DistributionStatusCompleted
	if tally.Failed > 0 {
		status = model.DistributionStatusFailed
	}
	now := time.Now()
	err = s.distributions.Finish(ctx, d.ID, repository.FinishResult{
		Status:         status,
		HolderCount:    len(payments),
		CompletedCount: tally.Completed,
		FailedCount:    tally.Failed,
		CompletedAt:    now,
	})
	if errors.Is(err, repository.ErrStaleState) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish distribution: %w", err)
	}

	d.Status = status
	d.HolderCount = len(payments)
	d.CompletedCount = tally.Completed
	d.FailedCount = tally.Failed
	d.CompletedAt = &now
	s.announce(ctx, d, tally.Moved)
	return nil
}

// abort 在生成 Payment 之前失败：failed、零 Payment、记录原因
func (s *distributionService) abort(ctx context.Context, d *model.Distribution, cause error) error {
	detail := cause.Error()
	now := time.Now()
	err := s.distributions.Finish(ctx, d.ID, repository.FinishResult{
		Status:      model.DistributionStatusFailed,
		ErrorDetail: &detail,
		CompletedAt: now,
	})
	if errors.Is(err, repository.ErrStaleState) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fail distribution: %w", err)
	}
	logger.Warn("distribution aborted before payments",
		zap.String("distribution_id", d.ID),
		zap.Error(cause),
	)

	d.Status = model.DistributionStatusFailed
	d.ErrorDetail = &detail
	d.CompletedAt = &now
	s.announce(ctx, d, decimal.Zero)
	return nil
}

// announce 发布终态事件；失败的分发额外通知运营并上报 Sentry
func (s *distributionService) announce(ctx context.Context, d *model.Distribution, moved decimal.Decimal) {
	ev := events.DistributionEvent{
		Type:           events.TypeDistributionCompleted,
		DistributionID: d.ID,
		ProjectID:      d.ProjectID,
		AssetID:        d.AssetID,
		Status:         string(d.Status),
		TotalAmount:    d.TotalAmount,
		MovedAmount:    moved,
		HolderCount:    d.HolderCount,
		CompletedCount: d.CompletedCount,
		FailedCount:    d.FailedCount,
		OccurredAt:     time.Now(),
	}
	if d.ErrorDetail != nil {
		ev.ErrorDetail = *d.ErrorDetail
	}
	if d.Status == model.DistributionStatusFailed {
		ev.Type = events.TypeDistributionFailed
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Warn("publish distribution event failed", zap.String("distribution_id", d.ID), zap.Error(err))
	}

	logger.Info("distribution finished",
		zap.String("distribution_id", d.ID),
		zap.String("status", string(d.Status)),
		zap.Int("completed", d.CompletedCount),
		zap.Int("failed", d.FailedCount),
		zap.String("moved", moved.String()),
	)
	if d.Status != model.DistributionStatusFailed {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("distribution_id", d.ID)
		scope.SetTag("project_id", d.ProjectID)
		sentry.CaptureMessage(fmt.Sprintf("distribution %s failed: %d of %d payments failed", d.ID, d.FailedCount, d.HolderCount))
	})
	if err := s.notifier.Notify(ctx, notifier.Alert{
		DistributionID: d.ID,
		ProjectID:      d.ProjectID,
		Status:         string(d.Status),
		Completed:      d.CompletedCount,
		Failed:         d.FailedCount,
		Detail:         ev.ErrorDetail,
	}); err != nil {
		logger.Warn("notify operators failed", zap.String("distribution_id", d.ID), zap.Error(err))
	}
}

func (s *distributionService) getDistribution(ctx context.Context, id string) (*model.Distribution, error) {
	d, err := s.distributions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDistributionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution %s: %w", id, err)
	}
	return d, nil
}

type paymentTally struct {
	Completed int
	Failed    int
	Pending   int
	Moved     decimal.Decimal
	Failing   decimal.Decimal
	Waiting   decimal.Decimal
}

func tallyPayments(payments []*model.Payment) paymentTally {
	t := paymentTally{Moved: decimal.Zero, Failing: decimal.Zero, Waiting: decimal.Zero}
	for _, p := range payments {
		switch p.Status {
		case model.PaymentStatusCompleted:
			t.Completed++
			t.Moved = t.Moved.Add(p.Amount)
		case model.PaymentStatusFailed:
			t.Failed++
			t.Failing = t.Failing.Add(p.Amount)
		default:
			t.Pending++
			t.Waiting = t.Waiting.Add(p.Amount)
		}
	}
	return t
}
