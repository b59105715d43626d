package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"purin_order/internal/model"
)

// ==================== 仓储接口 ====================

// AICallLogRepository AI调用日志仓储接口
type AICallLogRepository interface {
	Create(ctx context.Context, log *model.AICallLog) error
	GetByID(ctx context.Context, id int64) (*model.AICallLog, error)
	ListByOrderNumber(ctx context.Context, orderNumber string) ([]model.AICallLog, error)

	// 统计查询
	GetUsage(ctx context.Context, startTime, endTime time.Time) (*AIUsageStats, error)
}

// ==================== 统计结构 ====================

// AIUsageStats AI用量统计
type AIUsageStats struct {
	TotalCalls        int64   `json:"total_calls"`
	VerifiedCount     int64   `json:"verified_count"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	AvgDurationMs     float64 `json:"avg_duration_ms"`
	SuccessCount      int64   `json:"success_count"`
	FailedCount       int64   `json:"failed_count"`
}

// ==================== 仓储实现 ====================

type aiCallLogRepo struct {
	db *gorm.DB
}

// NewAICallLogRepository 创建AI调用日志仓储
func NewAICallLogRepository(db *gorm.DB) AICallLogRepository {
	return &aiCallLogRepo{db: db}
}

func (r *aiCallLogRepo) Create(ctx context.Context, log *model.AICallLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *aiCallLogRepo) GetByID(ctx context.Context, id int64) (*model.AICallLog, error) {
	var log model.AICallLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *aiCallLogRepo) ListByOrderNumber(ctx context.Context, orderNumber string) ([]model.AICallLog, error) {
	var logs []model.AICallLog
	err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("id DESC").
		Find(&logs).Error
	return logs, err
}

func (r *aiCallLogRepo) GetUsage(ctx context.Context, startTime, endTime time.Time) (*AIUsageStats, error) {
	var stats AIUsageStats

	query := r.db.WithContext(ctx).Model(&model.AICallLog{})
	if !startTime.IsZero() {
		query = query.Where("created_at >= ?", startTime)
	}
	if !endTime.IsZero() {
		query = query.Where("created_at <= ?", endTime)
	}

	err := query.Select(`
		COUNT(*) as total_calls,
		COALESCE(SUM(CASE WHEN verified THEN 1 ELSE 0 END), 0) as verified_count,
		COALESCE(SUM(input_tokens), 0) as total_input_tokens,
		COALESCE(SUM(output_tokens), 0) as total_output_tokens,
		COALESCE(AVG(duration_ms), 0) as avg_duration_ms,
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as success_count,
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed_count
	`).Scan(&stats).Error

	return &stats, err
}
