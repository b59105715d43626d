package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"purin_order/internal/model"
	"purin_order/pkg/utils"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	CreateBatch(ctx context.Context, list []model.Notification) error
	ListPendingEmail(ctx context.Context, now time.Time, maxAttempts, limit int) ([]model.Notification, error)
	MarkEmailSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkEmailFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error
	ListByProfile(ctx context.Context, profileID int64, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, profileID int64) (bool, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepo) CreateBatch(ctx context.Context, list []model.Notification) error {
	if len(list) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(list, 100).Error
}

// ListPendingEmail 有邮件目标、未发送、未超过重试次数且已到重试时间的通知；
// 失败次数少的优先，同次数按创建顺序
func (r *notificationRepo) ListPendingEmail(ctx context.Context, now time.Time, maxAttempts, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []model.Notification
	err := r.db.WithContext(ctx).
		Where("email <> '' AND email_sent_at IS NULL").
		Where("email_attempts < ?", maxAttempts).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now.UTC()).
		Order("email_attempts ASC, id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *notificationRepo) MarkEmailSent(ctx context.Context, id int64, sentAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_sent_at":   sentAt,
			"email_error":     "",
			"email_attempts":  gorm.Expr("email_attempts + 1"),
			"next_attempt_at": nil,
		}).Error
}

// MarkEmailFailed 记录失败并推迟下次重试
func (r *notificationRepo) MarkEmailFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_error":     utils.Truncate(errMsg, 1024),
			"email_attempts":  gorm.Expr("email_attempts + 1"),
			"next_attempt_at": nextAttemptAt.UTC(),
		}).Error
}

func (r *notificationRepo) ListByProfile(ctx context.Context, profileID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Where("profile_id = ?", profileID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var list []model.Notification
	err := query.Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// MarkRead 标记已读，返回是否命中
func (r *notificationRepo) MarkRead(ctx context.Context, id, profileID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND profile_id = ?", id, profileID).
		Update("is_read", true)
	return result.RowsAffected > 0, result.Error
}
