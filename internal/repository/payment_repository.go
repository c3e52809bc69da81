package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/payout-engine/internal/model"
)

const createBatchSize = 500

// PaymentRepository 分发转账仓储接口
type PaymentRepository interface {
	// CreateBatch 在单个事务内写入一次分发的全部 Payment，要么全部可见要么全部不可见
	CreateBatch(ctx context.Context, payments []*model.Payment) error

	// ListByDistribution 返回分发下全部 Payment（按持有人地址排序）
	ListByDistribution(ctx context.Context, distributionID string) ([]*model.Payment, error)

	// PageByDistribution 分页查询分发下的 Payment
	PageByDistribution(ctx context.Context, distributionID string, offset, limit int) ([]*model.Payment, error)

	// ListByHolder 按创建时间倒序分页查询持有人的收款记录
	ListByHolder(ctx context.Context, address string, offset, limit int) ([]*model.Payment, error)

	// CountByDistribution 统计分发下的 Payment 数量
	CountByDistribution(ctx context.Context, distributionID string) (int64, error)

	// Claim 发起转账前认领 Payment（写入 attempted_at），返回是否由本次调用认领成功
	Claim(ctx context.Context, distributionID, holder string, at time.Time) (bool, error)

	// FailUnsettled 将 claimedBefore 之前认领但仍为 pending 的 Payment 置为 failed，返回影响行数
	FailUnsettled(ctx context.Context, distributionID string, claimedBefore time.Time, code, detail string, at time.Time) (int64, error)

	// Complete pending -> completed，按 (distribution_id, holder_address) 隔离更新
	Complete(ctx context.Context, distributionID, holder, txID string, at time.Time) error

	// Fail 待处理 -> 失败
	Fail(ctx context.Context, distributionID, holder, code, detail string, at time.Time) error
}

type paymentRepository struct{ db *gorm.DB }

// NewPaymentRepository 创建 Payment 仓储
func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepository{db: db} }

func (r *paymentRepository) CreateBatch(ctx context.Context, payments []*model.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(payments, createBatchSize).Error
	})
	return translate(err)
}

func (r *paymentRepository) ListByDistribution(ctx context.Context, distributionID string) ([]*model.Payment, error) {
	var res []*model.Payment
	err := r.db.WithContext(ctx).
		Where("distribution_id = ?", distributionID).
		Order("holder_address").
		Find(&res).Error
	return res, translate(err)
}

func (r *paymentRepository) PageByDistribution(ctx context.Context, distributionID string, offset, limit int) ([]*model.Payment, error) {
	var res []*model.Payment
	err := r.db.WithContext(ctx).
		Where("distribution_id = ?", distributionID).
		Order("holder_address").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, translate(err)
}

func (r *paymentRepository) ListByHolder(ctx context.Context, address string, offset, limit int) ([]*model.Payment, error) {
	var res []*model.Payment
	err := r.db.WithContext(ctx).
		Where("holder_address = ?", address).
		Order("created_at DESC").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, translate(err)
}

func (r *paymentRepository) CountByDistribution(ctx context.Context, distributionID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("distribution_id = ?", distributionID).
		Count(&cnt).Error
	return cnt, translate(err)
}

func (r *paymentRepository) Claim(ctx context.Context, distributionID, holder string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("distribution_id = ? AND holder_address = ? AND status = ? AND attempted_at IS NULL",
			distributionID, holder, model.PaymentStatusPending).
		Updates(map[string]any{
			"attempted_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRepository) FailUnsettled(ctx context.Context, distributionID string, claimedBefore time.Time, code, detail string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("distribution_id = ? AND status = ? AND attempted_at IS NOT NULL AND attempted_at < ?",
			distributionID, model.PaymentStatusPending, claimedBefore).
		Updates(map[string]any{
			"status":       model.PaymentStatusFailed,
			"error_code":   code,
			"error_detail": detail,
			"updated_at":   at,
		})
	return res.RowsAffected, translate(res.Error)
}

func (r *paymentRepository) Complete(ctx context.Context, distributionID, holder, txID string, at time.Time) error {
	return r.settle(ctx, distributionID, holder, map[string]any{
		"status":       model.PaymentStatusCompleted,
		"tx_id":        txID,
		"attempted_at": at,
		"updated_at":   at,
	})
}

func (r *paymentRepository) Fail(ctx context.Context, distributionID, holder, code, detail string, at time.Time) error {
	return r.settle(ctx, distributionID, holder, map[string]any{
		"status":       model.PaymentStatusFailed,
		"error_code":   code,
		"error_detail": detail,
		"attempted_at": at,
		"updated_at":   at,
	})
}

func (r *paymentRepository) settle(ctx context.Context, distributionID, holder string, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("distribution_id = ? AND holder_address = ? AND status = ?", distributionID, holder, model.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}
