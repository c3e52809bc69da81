package model

import "time"

// Project 融资项目（仅分发所需字段）
type Project struct {
	ID      string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name    string `json:"name" gorm:"type:varchar(128);not null"`
	AssetID string `json:"asset_id" gorm:"type:varchar(128);not null;index"`
	// TreasuryAddress 分红出款账户
	TreasuryAddress string    `json:"treasury_address" gorm:"type:varchar(128);not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
