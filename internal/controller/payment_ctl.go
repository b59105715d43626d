package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/service"
	"purin_order/pkg/logger"
)

// PaymentController 付款凭证核验
type PaymentController struct {
	svc *service.PaymentService
	log *zap.Logger
}

// NewPaymentController 创建付款控制器
func NewPaymentController(svc *service.PaymentService, log *zap.Logger) *PaymentController {
	return &PaymentController{svc: svc, log: logger.OrNop(log).Named("payment_ctl")}
}

// VerifyProof 识别转账截图
// POST /api/payments/verify
func (c *PaymentController) VerifyProof(ctx *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	resp, err := c.svc.VerifyPaymentProof(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": resp})
}

// Usage AI 调用统计
// GET /api/admin/ai/usage?month=2006-01
func (c *PaymentController) Usage(ctx *gin.Context) {
	stats, err := c.svc.Usage(ctx.Request.Context(), ctx.Query("month"))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": stats})
}
