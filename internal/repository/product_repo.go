package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"purin_order/internal/model"
)

// ==================== 接口定义 ====================

// ProductRepository 商品仓储接口
type ProductRepository interface {
	// 基础 CRUD
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	GetBySlug(ctx context.Context, slug string) (*model.Product, error)
	GetBySlugUnscoped(ctx context.Context, slug string) (*model.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	Update(ctx context.Context, product *model.Product) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
	Restore(ctx context.Context, product *model.Product) error
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error)

	// 预售截止
	ListExpiringBefore(ctx context.Context, before time.Time) ([]model.Product, error)
	ListAll(ctx context.Context) ([]model.Product, error)

	// 表格导入
	UpsertBySlug(ctx context.Context, product *model.Product) error

	// 事务
	WithTx(tx *gorm.DB) ProductRepository
	Transaction(ctx context.Context, fn func(txRepo ProductRepository) error) error
}

// ==================== 过滤条件 ====================

// ProductFilter 商品过滤条件
type ProductFilter struct {
	Category string
	Status   string
	Keyword  string
	Visible  bool // 排除隐藏商品
	Page     int
	PageSize int
}

// ==================== 实现 ====================

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) GetBySlug(ctx context.Context, slug string) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetBySlugUnscoped 包含已软删除的商品
func (r *productRepo) GetBySlugUnscoped(ctx context.Context, slug string) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Unscoped().Where("slug = ?", slug).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *productRepo) Update(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Updates(fields).Error
}

func (r *productRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Product{}, id).Error
}

// Restore 覆盖已软删除的商品行并清除 deleted_at
func (r *productRepo) Restore(ctx context.Context, product *model.Product) error {
	product.DeletedAt = gorm.DeletedAt{}
	return r.db.WithContext(ctx).Unscoped().Save(product).Error
}

func (r *productRepo) List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Product{})

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Visible {
		query = query.Where("status <> ?", model.ProductStatusHidden)
	}
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		query = query.Where("name LIKE ? OR slug LIKE ?", keyword, keyword)
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
	offset := (filter.Page - 1) * filter.PageSize

	var products []model.Product
	err := query.
		Order("sort_order ASC, id DESC").
		Offset(offset).
		Limit(filter.PageSize).
		Find(&products).Error
	return products, total, err
}

// ListExpiringBefore 上架中、截止时间早于 before 的预售商品（含已过期）
func (r *productRepo) ListExpiringBefore(ctx context.Context, before time.Time) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ProductStatusActive).
		Where("is_preorder = ?", true).
		Where("order_deadline IS NOT NULL AND order_deadline <= ?", before).
		Order("order_deadline ASC").
		Find(&products).Error
	return products, err
}

func (r *productRepo) ListAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Order("id ASC").Find(&products).Error
	return products, err
}

// UpsertBySlug 按 slug 插入或更新；已软删除的同 slug 商品会被恢复
func (r *productRepo) UpsertBySlug(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "category",
			"price", "original_price", "images", "variants",
			"status", "is_preorder", "order_deadline", "estimated_delivery",
			"updated_at", "deleted_at",
		}),
	}).Create(product).Error
}

func (r *productRepo) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepo{db: tx}
}

func (r *productRepo) Transaction(ctx context.Context, fn func(txRepo ProductRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
