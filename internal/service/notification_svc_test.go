package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purin_order/internal/model"
	"purin_order/internal/repository"
)

func TestDispatchPendingNotifications(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mailer := &fakeMailer{failFor: map[string]error{"bounce@example.com": errors.New("mailbox full")}}
	svc := NewNotificationService(repository.NewNotificationRepository(db), mailer, nil)
	svc.now = fixedClock

	sent := fixedNow
	rows := []model.Notification{
		{Type: model.NotificationOrderStatus, Title: "a", Email: "a@example.com"},
		{Type: model.NotificationOrderStatus, Title: "b", Email: "bounce@example.com"},
		{Type: model.NotificationOrderStatus, Title: "c", Email: "c@example.com"},
		{Type: model.NotificationOrderStatus, Title: "no email"},
		{Type: model.NotificationOrderStatus, Title: "done", Email: "done@example.com", EmailSentAt: &sent},
	}
	require.NoError(t, db.Create(&rows).Error)

	result, err := svc.DispatchPendingNotifications(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "mailbox full")
	assert.ElementsMatch(t, []string{"a@example.com", "c@example.com"}, mailer.sent)

	var failed model.Notification
	require.NoError(t, db.First(&failed, rows[1].ID).Error)
	assert.Nil(t, failed.EmailSentAt)
	assert.Equal(t, "mailbox full", failed.EmailError)
	assert.Equal(t, 1, failed.EmailAttempts)

	var ok model.Notification
	require.NoError(t, db.First(&ok, rows[0].ID).Error)
	require.NotNil(t, ok.EmailSentAt)
	assert.False(t, ok.NeedsEmail())

	require.NotNil(t, failed.NextAttemptAt)
	assert.True(t, failed.NextAttemptAt.Equal(fixedNow.Add(2*time.Minute)))

	// 退避期间不重试，到期后继续
	delete(mailer.failFor, "bounce@example.com")
	result, err = svc.DispatchPendingNotifications(ctx, 50)
	require.NoError(t, err)
	assert.Zero(t, result.Sent)

	svc.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	result, err = svc.DispatchPendingNotifications(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Zero(t, result.Failed)
}

func TestDispatchPendingNotifications_FailuresDoNotBlockQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mailer := &fakeMailer{failFor: map[string]error{
		"bad1@example.com": errors.New("mailbox full"),
		"bad2@example.com": errors.New("mailbox full"),
	}}
	svc := NewNotificationService(repository.NewNotificationRepository(db), mailer, nil)
	now := fixedNow
	svc.now = func() time.Time { return now }

	rows := []model.Notification{
		{Type: model.NotificationOrderStatus, Title: "x", Email: "bad1@example.com"},
		{Type: model.NotificationOrderStatus, Title: "y", Email: "bad2@example.com"},
		{Type: model.NotificationOrderStatus, Title: "z", Email: "good@example.com"},
	}
	require.NoError(t, db.Create(&rows).Error)

	result, err := svc.DispatchPendingNotifications(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)

	// 同一时刻再跑一批，失败的两条在退避中，后面的正常通知得以发送
	result, err = svc.DispatchPendingNotifications(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, []string{"good@example.com"}, mailer.sent)

	t.Run("达到上限后放弃", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			now = now.Add(time.Hour)
			_, err := svc.DispatchPendingNotifications(ctx, 10)
			require.NoError(t, err)
		}
		var bad model.Notification
		require.NoError(t, db.First(&bad, rows[0].ID).Error)
		assert.Equal(t, maxEmailAttempts, bad.EmailAttempts)
		assert.Nil(t, bad.EmailSentAt)
	})
}

func TestEmailRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Minute, emailRetryDelay(0))
	assert.Equal(t, 2*time.Minute, emailRetryDelay(1))
	assert.Equal(t, 4*time.Minute, emailRetryDelay(2))
	assert.Equal(t, 16*time.Minute, emailRetryDelay(4))
	assert.Equal(t, time.Hour, emailRetryDelay(6))
	assert.Equal(t, time.Hour, emailRetryDelay(30))
}

func TestNotificationMarkRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewNotificationService(repository.NewNotificationRepository(db), &fakeMailer{}, nil)

	owner := seedProfile(t, db, "owner@example.com")
	other := seedProfile(t, db, "other@example.com")
	n := &model.Notification{ProfileID: &owner.ID, Type: model.NotificationOrderCreated, Title: "hi"}
	require.NoError(t, db.Create(n).Error)

	err := svc.MarkRead(ctx, other.ID, n.ID)
	assert.ErrorIs(t, err, ErrNotFound, "不能标记他人的通知")

	list, err := svc.ListMine(ctx, owner.ID, true)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.MarkRead(ctx, owner.ID, n.ID))

	list, err = svc.ListMine(ctx, owner.ID, true)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListMine(ctx, owner.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
}
