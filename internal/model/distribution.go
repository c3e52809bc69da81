package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DistributionStatus 分发状态
type DistributionStatus string

// DistributionStatus 状态常量：pending -> processing -> completed | failed
const (
	DistributionStatusPending    DistributionStatus = "pending"
	DistributionStatusProcessing DistributionStatus = "processing"
	DistributionStatusCompleted  DistributionStatus = "completed"
	DistributionStatusFailed     DistributionStatus = "failed"
)

// IsTerminal 是否为终态
func (s DistributionStatus) IsTerminal() bool {
	return s == DistributionStatusCompleted || s == DistributionStatusFailed
}

// Distribution 一次按持仓比例的分红分发（只追加，不删除）
type Distribution struct {
	ID            string             `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID     string             `json:"project_id" gorm:"type:varchar(36);not null;index:idx_distribution_project_created"`
	AssetID       string             `json:"asset_id" gorm:"type:varchar(128);not null"`
	SourceAddress string             `json:"source_address" gorm:"type:varchar(128);not null"`
	TotalAmount   decimal.Decimal    `json:"total_amount" gorm:"type:numeric(78,0);not null"`
	Status        DistributionStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	// ErrorDetail 仅在生成 Payment 之前失败时设置
	ErrorDetail    *string           `json:"error_detail,omitempty" gorm:"type:text"`
	HolderCount    int               `json:"holder_count" gorm:"not null;default:0"`
	CompletedCount int               `json:"completed_count" gorm:"not null;default:0"`
	FailedCount    int               `json:"failed_count" gorm:"not null;default:0"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`

	CreatedAt           time.Time  `json:"created_at" gorm:"not null;index:idx_distribution_project_created"`
	UpdatedAt           time.Time  `json:"updated_at" gorm:"not null;index"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (Distribution) TableName() string { return "distributions" }

// BeforeCreate 未指定 ID 时生成 uuid
func (d *Distribution) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = DistributionStatusPending
	}
	return nil
}
