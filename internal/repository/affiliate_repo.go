package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"purin_order/internal/model"
)

// AffiliateRepository 推广员仓储接口
type AffiliateRepository interface {
	Create(ctx context.Context, affiliate *model.Affiliate) error
	GetByID(ctx context.Context, id int64) (*model.Affiliate, error)
	GetByProfileID(ctx context.Context, profileID int64) (*model.Affiliate, error)
	GetByRefCode(ctx context.Context, refCode string) (*model.Affiliate, error)
	ExistsByRefCode(ctx context.Context, refCode string) (bool, error)
	List(ctx context.Context, filter AffiliateFilter) ([]model.Affiliate, int64, error)
	ListByStatus(ctx context.Context, status string) ([]model.Affiliate, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error

	// 佣金
	UpsertCommission(ctx context.Context, commission *model.AffiliateCommission) error
	GetCommission(ctx context.Context, affiliateID int64, month string) (*model.AffiliateCommission, error)
	MarkCommissionPaid(ctx context.Context, affiliateID int64, month string, paidAt time.Time) (bool, error)
	ListCommissions(ctx context.Context, affiliateID int64, limit int) ([]model.AffiliateCommission, error)
}

// AffiliateFilter 推广员过滤条件
type AffiliateFilter struct {
	Status   string
	Keyword  string
	Page     int
	PageSize int
}

type affiliateRepo struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广员仓储
func NewAffiliateRepository(db *gorm.DB) AffiliateRepository {
	return &affiliateRepo{db: db}
}

func (r *affiliateRepo) Create(ctx context.Context, affiliate *model.Affiliate) error {
	return r.db.WithContext(ctx).Create(affiliate).Error
}

func (r *affiliateRepo) GetByID(ctx context.Context, id int64) (*model.Affiliate, error) {
	var affiliate model.Affiliate
	if err := r.db.WithContext(ctx).First(&affiliate, id).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *affiliateRepo) GetByProfileID(ctx context.Context, profileID int64) (*model.Affiliate, error) {
	var affiliate model.Affiliate
	err := r.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *affiliateRepo) GetByRefCode(ctx context.Context, refCode string) (*model.Affiliate, error) {
	var affiliate model.Affiliate
	err := r.db.WithContext(ctx).Preload("Profile").Where("ref_code = ?", refCode).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *affiliateRepo) ExistsByRefCode(ctx context.Context, refCode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Affiliate{}).Where("ref_code = ?", refCode).Count(&count).Error
	return count > 0, err
}

func (r *affiliateRepo) List(ctx context.Context, filter AffiliateFilter) ([]model.Affiliate, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Affiliate{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		query = query.Where("ref_code LIKE ? OR social_link LIKE ?", keyword, keyword)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	var affiliates []model.Affiliate
	err := query.Preload("Profile").
		Order("id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&affiliates).Error
	return affiliates, total, err
}

func (r *affiliateRepo) ListByStatus(ctx context.Context, status string) ([]model.Affiliate, error) {
	var affiliates []model.Affiliate
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&affiliates).Error
	return affiliates, err
}

func (r *affiliateRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Affiliate{}).Where("id = ?", id).Updates(fields).Error
}

// UpsertCommission 按 (affiliate_id, month) 写入月度佣金，已结算的记录不再改写
func (r *affiliateRepo) UpsertCommission(ctx context.Context, commission *model.AffiliateCommission) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "affiliate_id"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_count", "revenue", "rate", "amount", "calculated_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "affiliate_commissions.status <> ?", Vars: []interface{}{model.CommissionStatusPaid}},
		}},
	}).Create(commission).Error
}

// MarkCommissionPaid pending -> paid，返回是否有记录被更新
func (r *affiliateRepo) MarkCommissionPaid(ctx context.Context, affiliateID int64, month string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.AffiliateCommission{}).
		Where("affiliate_id = ? AND month = ? AND status = ?", affiliateID, month, model.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":  model.CommissionStatusPaid,
			"paid_at": paidAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *affiliateRepo) GetCommission(ctx context.Context, affiliateID int64, month string) (*model.AffiliateCommission, error) {
	var commission model.AffiliateCommission
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND month = ?", affiliateID, month).
		First(&commission).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *affiliateRepo) ListCommissions(ctx context.Context, affiliateID int64, limit int) ([]model.AffiliateCommission, error) {
	if limit <= 0 {
		limit = 12
	}
	var commissions []model.AffiliateCommission
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("month DESC").
		Limit(limit).
		Find(&commissions).Error
	return commissions, err
}
