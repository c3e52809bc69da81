package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/payout-engine/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByWalletAddress(ctx context.Context, address string) (*model.User, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	// 幂等：重复创建不报错
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error)
}

func (r *userRepository) GetByWalletAddress(ctx context.Context, address string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", address).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
