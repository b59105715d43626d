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

// AffiliateController 推广员（CTV）控制器
type AffiliateController struct {
	svc *service.AffiliateService
	log *zap.Logger
}

// NewAffiliateController 创建推广员控制器
func NewAffiliateController(svc *service.AffiliateService, log *zap.Logger) *AffiliateController {
	return &AffiliateController{svc: svc, log: logger.OrNop(log).Named("affiliate_ctl")}
}

// ==================== 推广员 ====================

// Register 申请成为推广员
// POST /api/affiliates
func (c *AffiliateController) Register(ctx *gin.Context) {
	var req dto.RegisterAffiliateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	aff, err := c.svc.Register(ctx.Request.Context(), middleware.GetUserID(ctx), &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"data": aff, "message": "đã gửi đăng ký, vui lòng chờ duyệt"})
}

// Dashboard 推广面板
// GET /api/affiliates/me
func (c *AffiliateController) Dashboard(ctx *gin.Context) {
	dash, err := c.svc.Dashboard(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": dash})
}

// ==================== 管理 ====================

// List 推广员列表
// GET /api/admin/affiliates
func (c *AffiliateController) List(ctx *gin.Context) {
	var req dto.ListAffiliatesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	resp, err := c.svc.ListAffiliates(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpdateStatus 审核 / 停用
// PATCH /api/admin/affiliates/:id/status
func (c *AffiliateController) UpdateStatus(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	var req dto.UpdateAffiliateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	aff, err := c.svc.UpdateStatus(ctx.Request.Context(), id, req.Status)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": aff})
}

// Recalculate 重算指定月份佣金
// POST /api/admin/jobs/commissions
func (c *AffiliateController) Recalculate(ctx *gin.Context) {
	var req dto.RecalculateCommissionsRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, err)
			return
		}
	}

	result, err := c.svc.RecalculateCommissions(ctx.Request.Context(), req.Month)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": result})
}

// MarkCommissionPaid 确认已结算某月佣金
// POST /api/admin/affiliates/:id/commissions/:month/paid
func (c *AffiliateController) MarkCommissionPaid(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	commission, err := c.svc.MarkCommissionPaid(ctx.Request.Context(), id, ctx.Param("month"))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": commission})
}
