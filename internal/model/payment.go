package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus 单笔转账状态
type PaymentStatus string

// PaymentStatus 状态常量：pending -> completed | failed，只变更一次
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment 错误码
const (
	PaymentErrorLedgerUnavailable = "ledger_unavailable"
	PaymentErrorTransferRejected  = "transfer_rejected"
	// PaymentErrorOutcomeUnknown 已认领并发起转账但结果未落库，需按 reference 人工对账
	PaymentErrorOutcomeUnknown = "outcome_unknown"
)

// Payment 分发中单个持有人的一笔转账
type Payment struct {
	ID             string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DistributionID string `json:"distribution_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_payment_distribution_holder,priority:1"`
	HolderAddress  string `json:"holder_address" gorm:"type:varchar(128);not null;uniqueIndex:ux_payment_distribution_holder,priority:2;index:idx_payment_holder_created,priority:1"`
	// Balance 快照时的持仓余额
	Balance     decimal.Decimal `json:"balance" gorm:"type:numeric(78,0);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(78,0);not null"`
	Status      PaymentStatus   `json:"status" gorm:"type:varchar(16);not null;index"`
	TxID        *string         `json:"tx_id,omitempty" gorm:"type:varchar(128)"`
	ErrorCode   *string         `json:"error_code,omitempty" gorm:"type:varchar(32)"`
	ErrorDetail *string         `json:"error_detail,omitempty" gorm:"type:text"`
	// AttemptedAt 发起转账前认领时写入；pending 且非空表示转账可能已发出
	AttemptedAt *time.Time      `json:"attempted_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;index:idx_payment_holder_created,priority:2"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName 指定表名
func (Payment) TableName() string { return "payments" }

// BeforeCreate 未指定 ID 时生成 uuid
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	return nil
}
