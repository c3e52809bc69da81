package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/payout-engine/internal/model"
)

type ProjectRepository interface {
	Create(ctx context.Context, p *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
}

type projectRepository struct{ db *gorm.DB }

func NewProjectRepository(db *gorm.DB) ProjectRepository { return &projectRepository{db: db} }

func (r *projectRepository) Create(ctx context.Context, p *model.Project) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
