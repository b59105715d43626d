package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/internal/service"
	"purin_order/pkg/logger"
)

// IdempotencyHeader 下单防重复提交请求头
const IdempotencyHeader = "Idempotency-Key"

// OrderController 订单控制器
type OrderController struct {
	svc   *service.OrderService
	sheet *service.SheetService
	log   *zap.Logger
}

// NewOrderController 创建订单控制器
func NewOrderController(svc *service.OrderService, sheet *service.SheetService, log *zap.Logger) *OrderController {
	return &OrderController{svc: svc, sheet: sheet, log: logger.OrNop(log).Named("order_ctl")}
}

// ==================== 购物车与下单 ====================

// Quote 购物车报价
// POST /api/cart/quote
func (c *OrderController) Quote(ctx *gin.Context) {
	var req dto.QuoteCartRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	quote, err := c.svc.QuoteCart(ctx.Request.Context(), req.Items)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": quote})
}

// Checkout 下单，可匿名
// POST /api/orders
func (c *OrderController) Checkout(ctx *gin.Context) {
	var req dto.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	resp, err := c.svc.Checkout(ctx.Request.Context(), &req, optionalUserID(ctx), ctx.GetHeader(IdempotencyHeader))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"data": resp})
}

// ==================== 查询 ====================

// Track 订单号 + 联系方式查询
// GET /api/orders/track?order_number=&contact=
func (c *OrderController) Track(ctx *gin.Context) {
	var req dto.TrackOrderRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	order, err := c.svc.TrackOrder(ctx.Request.Context(), req.OrderNumber, req.Contact)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": order})
}

// ListMine 我的订单
// GET /api/me/orders
func (c *OrderController) ListMine(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	resp, err := c.svc.ListMyOrders(ctx.Request.Context(), middleware.GetUserID(ctx), page, pageSize)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": resp})
}

// ==================== 管理 ====================

// List 订单列表
// GET /api/admin/orders
func (c *OrderController) List(ctx *gin.Context) {
	var req dto.ListOrdersRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	resp, err := c.svc.ListOrders(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetByID 订单详情
// GET /api/admin/orders/:id
func (c *OrderController) GetByID(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	order, err := c.svc.GetOrder(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": order})
}

// UpdateStatus 更新订单状态
// PATCH /api/admin/orders/:id/status
func (c *OrderController) UpdateStatus(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	var req dto.UpdateOrderStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	order, err := c.svc.UpdateOrderStatus(ctx.Request.Context(), id, req.Status, req.Note, middleware.GetUserID(ctx))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": order, "message": "đã cập nhật trạng thái"})
}

// Export 推送日期范围内的订单到表格
// POST /api/admin/orders/export
func (c *OrderController) Export(ctx *gin.Context) {
	var req dto.ExportOrdersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	result, err := c.sheet.ExportOrders(ctx.Request.Context(), req.From, req.To)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": result})
}
