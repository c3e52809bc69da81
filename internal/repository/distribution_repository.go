package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/payout-engine/internal/model"
)

// FinishResult 分发终态写入内容
type FinishResult struct {
	Status         model.DistributionStatus
	HolderCount    int
	CompletedCount int
	FailedCount    int
	ErrorDetail    *string
	CompletedAt    time.Time
}

// DistributionRepository 分发仓储接口
type DistributionRepository interface {
	// Create 创建分发记录
	Create(ctx context.Context, d *model.Distribution) error

	// GetByID 根据ID查询分发
	GetByID(ctx context.Context, id string) (*model.Distribution, error)

	// ListByProject 按创建时间倒序分页查询项目的分发
	ListByProject(ctx context.Context, projectID string, offset, limit int) ([]*model.Distribution, error)

	// MarkProcessing pending -> processing，返回是否由本次调用完成迁移
	MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error)

	// Finish 处理中 -> 完成或失败
	Finish(ctx context.Context, id string, result FinishResult) error

	// Touch 刷新 processing 分发的 updated_at，表示仍有执行者在推进
	Touch(ctx context.Context, id string, at time.Time) error

	// ClaimStale 认领长时间停留在 pending/processing 的分发，并刷新 updated_at 作为租约
	ClaimStale(ctx context.Context, before time.Time, limit int) ([]*model.Distribution, error)
}

type distributionRepository struct {
	db *gorm.DB
}

// NewDistributionRepository 创建分发仓储
func NewDistributionRepository(db *gorm.DB) DistributionRepository {
	return &distributionRepository{db: db}
}

func (r *distributionRepository) Create(ctx context.Context, d *model.Distribution) error {
	return translate(r.db.WithContext(ctx).Create(d).Error)
}

func (r *distributionRepository) GetByID(ctx context.Context, id string) (*model.Distribution, error) {
	var d model.Distribution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *distributionRepository) ListByProject(ctx context.Context, projectID string, offset, limit int) ([]*model.Distribution, error) {
	var res []*model.Distribution
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, translate(err)
}

func (r *distributionRepository) MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Distribution{}).
		Where("id = ? AND status = ?", id, model.DistributionStatusPending).
		Updates(map[string]any{
			"status":                model.DistributionStatusProcessing,
			"processing_started_at": at,
			"updated_at":            at,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *distributionRepository) Finish(ctx context.Context, id string, result FinishResult) error {
	res := r.db.WithContext(ctx).
		Model(&model.Distribution{}).
		Where("id = ? AND status = ?", id, model.DistributionStatusProcessing).
		Updates(map[string]any{
			"status":          result.Status,
			"holder_count":    result.HolderCount,
			"completed_count": result.CompletedCount,
			"failed_count":    result.FailedCount,
			"error_detail":    result.ErrorDetail,
			"completed_at":    result.CompletedAt,
			"updated_at":      result.CompletedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *distributionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return translate(r.db.WithContext(ctx).
		Model(&model.Distribution{}).
		Where("id = ? AND status = ?", id, model.DistributionStatusProcessing).
		Update("updated_at", at).Error)
}

func (r *distributionRepository) ClaimStale(ctx context.Context, before time.Time, limit int) ([]*model.Distribution, error) {
	var batch []*model.Distribution
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status IN ? AND updated_at < ?",
			[]model.DistributionStatus{model.DistributionStatusPending, model.DistributionStatusProcessing}, before).
			Order("updated_at").
			Limit(limit)
		// sqlite 不支持行锁
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, d := range batch {
			ids[i] = d.ID
		}
		return tx.Model(&model.Distribution{}).
			Where("id IN ?", ids).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return batch, nil
}
