package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/model"
	"github.com/d60-Lab/payout-engine/internal/repository"
	"github.com/d60-Lab/payout-engine/pkg/logger"
)

// PaymentOrder 一笔待执行的转账
type PaymentOrder struct {
	DistributionID string
	AssetID        string
	From           string
	To             string
	Amount         decimal.Decimal
}

// PaymentOutcome 转账结果；失败时 Err 包装 ErrTransferRejected 或 ErrLedgerUnavailable
type PaymentOutcome struct {
	Status      model.PaymentStatus
	TxID        string
	ErrorCode   string
	Err         error
	AttemptedAt time.Time
}

// PaymentExecutor 对单个持有人发起一次转账并记录结果，不做重试
type PaymentExecutor struct {
	client   ledger.Client
	payments repository.PaymentRepository
	timeout  time.Duration
}

func NewPaymentExecutor(client ledger.Client, payments repository.PaymentRepository, timeout time.Duration) *PaymentExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaymentExecutor{client: client, payments: payments, timeout: timeout}
}

// Execute 发起转账。超时与其它错误一样记为失败。
func (e *PaymentExecutor) Execute(ctx context.Context, order PaymentOrder) PaymentOutcome {
	ctx, span := tracer.Start(ctx, "distribution.transfer", trace.WithAttributes(
		attribute.String("distribution.id", order.DistributionID),
		attribute.String("holder", order.To),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.client.Transfer(ctx, ledger.TransferRequest{
		From:      order.From,
		To:        order.To,
		AssetID:   order.AssetID,
		Amount:    order.Amount,
		Reference: order.DistributionID + ":" + order.To,
	})
	at := time.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		if errors.Is(err, ledger.ErrRejected) {
			return PaymentOutcome{
				Status:      model.PaymentStatusFailed,
				ErrorCode:   model.PaymentErrorTransferRejected,
				Err:         fmt.Errorf("%w: %v", ErrTransferRejected, err),
				AttemptedAt: at,
			}
		}
		return PaymentOutcome{
			Status:      model.PaymentStatusFailed,
			ErrorCode:   model.PaymentErrorLedgerUnavailable,
			Err:         fmt.Errorf("%w: %v", ErrLedgerUnavailable, err),
			AttemptedAt: at,
		}
	}
	return PaymentOutcome{Status: model.PaymentStatusCompleted, TxID: res.TxID, AttemptedAt: at}
}

// Timeout 单笔转账超时
func (e *PaymentExecutor) Timeout() time.Duration { return e.timeout }

// Run 认领 Payment、执行转账并按 (distribution_id, holder_address) 持久化结果。
// 认领失败返回 ErrPaymentClaimed 且不发起转账；转账失败记录在 outcome 中，不作为错误返回。
func (e *PaymentExecutor) Run(ctx context.Context, order PaymentOrder) (PaymentOutcome, error) {
	claimed, err := e.payments.Claim(ctx, order.DistributionID, order.To, time.Now())
	if err != nil {
		return PaymentOutcome{}, fmt.Errorf("claim payment %s/%s: %w", order.DistributionID, order.To, err)
	}
	if !claimed {
		return PaymentOutcome{}, fmt.Errorf("%w: %s/%s", ErrPaymentClaimed, order.DistributionID, order.To)
	}

	out := e.Execute(ctx, order)

	if out.Status == model.PaymentStatusCompleted {
		err = e.payments.Complete(ctx, order.DistributionID, order.To, out.TxID, out.AttemptedAt)
	} else {
		err = e.payments.Fail(ctx, order.DistributionID, order.To, out.ErrorCode, out.Err.Error(), out.AttemptedAt)
	}
	if err != nil {
		// 资金可能已经转出，必须留下 tx_id 以便人工对账
		logger.Error("persist payment outcome failed",
			zap.String("distribution_id", order.DistributionID),
			zap.String("holder", order.To),
			zap.String("status", string(out.Status)),
			zap.String("tx_id", out.TxID),
			zap.Error(err),
		)
		return out, fmt.Errorf("persist payment %s/%s: %w", order.DistributionID, order.To, err)
	}
	return out, nil
}
