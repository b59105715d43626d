package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"purin_order/internal/model"
)

// ==================== ProfileRepository 用户仓库 ====================

// ProfileRepository 用户仓库接口
type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	GetByID(ctx context.Context, id int64) (*model.Profile, error)
	GetByEmail(ctx context.Context, email string) (*model.Profile, error)
	Update(ctx context.Context, profile *model.Profile) error
	UpdateLastLogin(ctx context.Context, id int64) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ListByRole(ctx context.Context, role string) ([]model.Profile, error)
}

// ==================== 实现 ====================

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建用户仓库
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// Create 创建用户
func (r *profileRepository) Create(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// GetByID 根据 ID 获取用户，不存在返回 nil, nil
func (r *profileRepository) GetByID(ctx context.Context, id int64) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).First(&profile, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByEmail 根据邮箱获取用户，不存在返回 nil, nil
func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update 更新用户
func (r *profileRepository) Update(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

// UpdateLastLogin 更新最后登录时间
func (r *profileRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ?", id).
		Update("last_login_at", time.Now()).Error
}

// ExistsByEmail 检查邮箱是否存在
func (r *profileRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("email = ?", email).
		Count(&count).Error
	return count > 0, err
}

// ListByRole 按角色列出启用中的用户
func (r *profileRepository) ListByRole(ctx context.Context, role string) ([]model.Profile, error) {
	var profiles []model.Profile
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true).
		Order("id ASC").
		Find(&profiles).Error
	return profiles, err
}
