// Package events 向下游发布分发终态事件
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 事件类型
const (
	TypeDistributionCompleted = "distribution.completed"
	TypeDistributionFailed    = "distribution.failed"
)

// DistributionEvent 分发进入终态时发布的事件
type DistributionEvent struct {
	Type           string          `json:"type"`
	DistributionID string          `json:"distribution_id"`
	ProjectID      string          `json:"project_id"`
	AssetID        string          `json:"asset_id"`
	Status         string          `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	MovedAmount    decimal.Decimal `json:"moved_amount"`
	HolderCount    int             `json:"holder_count"`
	CompletedCount int             `json:"completed_count"`
	FailedCount    int             `json:"failed_count"`
	ErrorDetail    string          `json:"error_detail,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event DistributionEvent) error
	Close() error
}

// NopPublisher 丢弃所有事件（未配置 Kafka 时使用）
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DistributionEvent) error { return nil }
func (NopPublisher) Close() error                                     { return nil }
