package model

import "time"

// User 平台用户（分发只读，用于持有人展示）
type User struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username      string    `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	Email         string    `json:"email" gorm:"type:varchar(128);uniqueIndex;not null"`
	WalletAddress string    `json:"wallet_address" gorm:"type:varchar(128);index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
