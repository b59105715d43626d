package repository

import (
	"context"
	"time"

	"purin_order/internal/model"

	"gorm.io/gorm"
)

// ==================== 过滤条件 ====================

// OrderFilter 订单过滤条件
type OrderFilter struct {
	ProfileID   *int64
	AffiliateID *int64
	Status      string
	StartDate   *time.Time
	EndDate     *time.Time
	Keyword     string
	Page        int
	PageSize    int
}

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	GetByIDWithRelations(ctx context.Context, id int64) (*model.Order, error)
	GetByOrderNumberWithRelations(ctx context.Context, orderNumber string) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]model.Order, error)
	ListByStatus(ctx context.Context, status string) ([]model.Order, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	UpdateStatusFrom(ctx context.Context, id int64, from string, fields map[string]interface{}) (bool, error)
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)

	// 状态历史
	AddHistory(ctx context.Context, history *model.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error)
	LatestStatusEntries(ctx context.Context, orderIDs []int64, toStatus string) (map[int64]time.Time, error)

	// 推广统计
	GetAffiliateStats(ctx context.Context, affiliateID int64, from, to time.Time) (*AffiliateOrderStats, error)

	// 事务
	WithTx(tx *gorm.DB) OrderRepository
	Transaction(ctx context.Context, fn func(txRepo OrderRepository) error) error
}

// AffiliateOrderStats 推广订单统计（不含已取消）
type AffiliateOrderStats struct {
	OrderCount int64
	Revenue    int64
}

// ==================== 实现 ====================

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create 创建订单，Items / Histories 随关联一并写入
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items").
		Preload("Histories", func(db *gorm.DB) *gorm.DB {
			return db.Order("changed_at ASC, id ASC")
		})
}

func (r *orderRepository) GetByIDWithRelations(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	if err := r.withRelations(ctx).First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByOrderNumberWithRelations(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := r.withRelations(ctx).Where("order_number = ?", orderNumber).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Order{})

	// 应用过滤条件
	if filter.ProfileID != nil {
		db = db.Where("profile_id = ?", *filter.ProfileID)
	}
	if filter.AffiliateID != nil {
		db = db.Where("affiliate_id = ?", *filter.AffiliateID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		db = db.Where("created_at >= ?", filter.StartDate)
	}
	if filter.EndDate != nil {
		db = db.Where("created_at <= ?", filter.EndDate)
	}
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		db = db.Where("order_number LIKE ? OR customer_name LIKE ? OR phone LIKE ? OR email LIKE ?",
			keyword, keyword, keyword, keyword)
	}

	// 计算总数
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	err := db.
		Preload("Items").
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&orders).Error

	return orders, total, err
}

func (r *orderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) ListByStatus(ctx context.Context, status string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&orders).Error
	return orders, err
}

func (r *orderRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateStatusFrom 仅当当前状态仍为 from 时更新，返回是否命中
func (r *orderRepository) UpdateStatusFrom(ctx context.Context, id int64, from string, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *orderRepository) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	return count > 0, err
}

func (r *orderRepository) AddHistory(ctx context.Context, history *model.OrderStatusHistory) error {
	if history.ChangedAt.IsZero() {
		history.ChangedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *orderRepository) ListHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	var histories []model.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("changed_at ASC, id ASC").
		Find(&histories).Error
	return histories, err
}

// LatestStatusEntries 每个订单最近一次进入 toStatus 的时间
func (r *orderRepository) LatestStatusEntries(ctx context.Context, orderIDs []int64, toStatus string) (map[int64]time.Time, error) {
	entries := make(map[int64]time.Time, len(orderIDs))
	if len(orderIDs) == 0 {
		return entries, nil
	}

	var histories []model.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id IN ? AND to_status = ?", orderIDs, toStatus).
		Find(&histories).Error
	if err != nil {
		return nil, err
	}

	for _, h := range histories {
		if at, ok := entries[h.OrderID]; !ok || h.ChangedAt.After(at) {
			entries[h.OrderID] = h.ChangedAt
		}
	}
	return entries, nil
}

func (r *orderRepository) GetAffiliateStats(ctx context.Context, affiliateID int64, from, to time.Time) (*AffiliateOrderStats, error) {
	var result struct {
		Count  int64
		Amount int64
	}
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("affiliate_id = ?", affiliateID).
		Where("status <> ?", model.OrderStatusCancelled).
		Where("created_at >= ? AND created_at < ?", from, to).
		Select("COUNT(*) as count, COALESCE(SUM(total), 0) as amount").
		Scan(&result).Error
	if err != nil {
		return nil, err
	}
	return &AffiliateOrderStats{OrderCount: result.Count, Revenue: result.Amount}, nil
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) Transaction(ctx context.Context, fn func(txRepo OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
