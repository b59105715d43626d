package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/logger"
)

// NotificationService 站内通知与邮件投递
type NotificationService struct {
	repo   repository.NotificationRepository
	mailer Mailer
	log    *zap.Logger
	now    func() time.Time
}

// NewNotificationService 创建通知服务
func NewNotificationService(repo repository.NotificationRepository, mailer Mailer, log *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		mailer: mailer,
		log:    logger.OrNop(log).Named("notification"),
		now:    time.Now,
	}
}

const (
	// maxEmailAttempts 达到后不再投递，站内通知仍保留
	maxEmailAttempts = 5
	emailRetryBase   = 2 * time.Minute
	emailRetryMax    = time.Hour
)

// emailRetryDelay 第 attempts 次失败后的等待时间：2m, 4m, 8m ... 最多 1h
func emailRetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := emailRetryBase
	for i := 1; i < attempts && d < emailRetryMax; i++ {
		d *= 2
	}
	if d > emailRetryMax {
		d = emailRetryMax
	}
	return d
}

// DispatchPendingNotifications 顺序发送待投递邮件；失败写回通知行并按次数退避，
// 正在退避的通知不占用本批次名额
func (s *NotificationService) DispatchPendingNotifications(ctx context.Context, limit int) (*dto.DispatchResult, error) {
	now := s.now()
	pending, err := s.repo.ListPendingEmail(ctx, now, maxEmailAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}

	result := &dto.DispatchResult{Errors: []string{}}
	for i := range pending {
		n := &pending[i]
		if ctx.Err() != nil {
			result.Errors = appendErr(result.Errors, "dispatch", ctx.Err())
			break
		}

		if err := s.mailer.SendNotification(ctx, n); err != nil {
			result.Failed++
			result.Errors = appendErr(result.Errors, fmt.Sprintf("notification %d", n.ID), err)
			attempts := n.EmailAttempts + 1
			if markErr := s.repo.MarkEmailFailed(ctx, n.ID, err.Error(), now.Add(emailRetryDelay(attempts))); markErr != nil {
				s.log.Error("mark email failed", zap.Int64("id", n.ID), zap.Error(markErr))
			}
			if attempts >= maxEmailAttempts {
				s.log.Warn("email abandoned",
					zap.Int64("id", n.ID), zap.Int("attempts", attempts), zap.Error(err))
			}
			continue
		}

		if err := s.repo.MarkEmailSent(ctx, n.ID, now); err != nil {
			result.Errors = appendErr(result.Errors, fmt.Sprintf("notification %d", n.ID), err)
			continue
		}
		result.Sent++
	}

	if len(pending) > 0 {
		s.log.Info("notifications dispatched",
			zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
	}
	return result, nil
}

// ListMine 当前用户的通知
func (s *NotificationService) ListMine(ctx context.Context, profileID int64, unreadOnly bool) ([]model.Notification, error) {
	return s.repo.ListByProfile(ctx, profileID, unreadOnly, 50)
}

// MarkRead 标记已读
func (s *NotificationService) MarkRead(ctx context.Context, profileID, id int64) error {
	ok, err := s.repo.MarkRead(ctx, id, profileID)
	if err != nil {
		return err
	}
	if !ok {
		return newKindError(ErrNotFound, "không tìm thấy thông báo")
	}
	return nil
}
