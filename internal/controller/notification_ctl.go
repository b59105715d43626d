package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/internal/service"
	"purin_order/pkg/logger"
)

// NotificationController 通知与邮件
type NotificationController struct {
	svc    *service.NotificationService
	mailer service.Mailer
	log    *zap.Logger
}

// NewNotificationController 创建通知控制器
func NewNotificationController(svc *service.NotificationService, mailer service.Mailer, log *zap.Logger) *NotificationController {
	return &NotificationController{svc: svc, mailer: mailer, log: logger.OrNop(log).Named("notification_ctl")}
}

// ListMine 我的通知
// GET /api/me/notifications?unread=true
func (c *NotificationController) ListMine(ctx *gin.Context) {
	list, err := c.svc.ListMine(ctx.Request.Context(), middleware.GetUserID(ctx), ctx.Query("unread") == "true")
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": list})
}

// MarkRead 标记已读
// POST /api/me/notifications/:id/read
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	if err := c.svc.MarkRead(ctx.Request.Context(), middleware.GetUserID(ctx), id); err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// SendOrderEmail 直接发送订单邮件
// POST /api/admin/emails/order
func (c *NotificationController) SendOrderEmail(ctx *gin.Context) {
	var req dto.SendOrderEmailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	if err := c.mailer.SendOrderEmail(ctx.Request.Context(), &req); err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "đã gửi email"})
}
