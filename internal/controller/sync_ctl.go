package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/internal/service"
	"purin_order/internal/task"
	"purin_order/pkg/logger"
)

// SyncController 表格 webhook、图片同步与任务手动触发
type SyncController struct {
	taskManager *task.TaskManager
	sheet       *service.SheetService
	images      *service.ImageSyncService
	log         *zap.Logger
}

// NewSyncController 创建同步控制器
func NewSyncController(taskManager *task.TaskManager, sheet *service.SheetService, images *service.ImageSyncService, log *zap.Logger) *SyncController {
	return &SyncController{
		taskManager: taskManager,
		sheet:       sheet,
		images:      images,
		log:         logger.OrNop(log).Named("sync_ctl"),
	}
}

// ==================== 表格 webhook ====================

// ImportProducts 表格推送商品（共享密钥校验）
// POST /api/webhooks/sheet/products
func (c *SyncController) ImportProducts(ctx *gin.Context) {
	var req dto.ImportProductsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if req.DeliveryID == "" {
		req.DeliveryID = ctx.GetHeader("X-Delivery-Id")
	}

	result, err := c.sheet.ImportProducts(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": result})
}

// ==================== 手动触发 ====================

// SyncImages 迁移指定商品（为空则全部）的外部图片
// POST /api/admin/jobs/image-sync
func (c *SyncController) SyncImages(ctx *gin.Context) {
	var req dto.ImageSyncRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, err)
			return
		}
	}

	result, err := c.images.SyncProductImages(ctx.Request.Context(), req.ProductIDs)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": result})
}

// AutoComplete 配送中订单自动完成
// POST /api/admin/jobs/auto-complete
func (c *SyncController) AutoComplete(ctx *gin.Context) {
	c.trigger(ctx, middleware.JobAutoComplete)
}

// CheckExpiring 预售截止检查
// POST /api/admin/jobs/expiring-check
func (c *SyncController) CheckExpiring(ctx *gin.Context) {
	c.trigger(ctx, middleware.JobExpiringCheck)
}

// DispatchNotifications 投递待发送的通知邮件
// POST /api/admin/jobs/notifications
func (c *SyncController) DispatchNotifications(ctx *gin.Context) {
	c.trigger(ctx, middleware.JobNotify)
}

// Status 任务注册情况
// GET /api/admin/jobs
func (c *SyncController) Status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"data": c.taskManager.Status()})
}

func (c *SyncController) trigger(ctx *gin.Context, job middleware.JobType) {
	result, err := c.taskManager.Trigger(ctx.Request.Context(), job)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": result})
}
