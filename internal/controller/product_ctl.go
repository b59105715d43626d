package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/internal/model"
	"purin_order/internal/service"
	"purin_order/pkg/logger"
)

// ProductController 商品控制器
type ProductController struct {
	svc *service.ProductService
	log *zap.Logger
}

// NewProductController 创建商品控制器
func NewProductController(svc *service.ProductService, log *zap.Logger) *ProductController {
	return &ProductController{svc: svc, log: logger.OrNop(log).Named("product_ctl")}
}

// ==================== 前台 ====================

// List 商品列表
// GET /api/products
func (c *ProductController) List(ctx *gin.Context) {
	var req dto.ListProductsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	isAdmin := middleware.GetUserRole(ctx) == model.RoleAdmin
	resp, err := c.svc.ListProducts(ctx.Request.Context(), &req, isAdmin)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetBySlug 商品详情
// GET /api/products/:slug
func (c *ProductController) GetBySlug(ctx *gin.Context) {
	isAdmin := middleware.GetUserRole(ctx) == model.RoleAdmin
	product, err := c.svc.GetProductBySlug(ctx.Request.Context(), ctx.Param("slug"), isAdmin)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": product})
}

// ==================== 管理 ====================

// Create 创建商品
// POST /api/admin/products
func (c *ProductController) Create(ctx *gin.Context) {
	var req dto.CreateProductRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	product, err := c.svc.CreateProduct(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"data": product})
}

// Update 更新商品
// PATCH /api/admin/products/:id
func (c *ProductController) Update(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	var req dto.UpdateProductRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	product, err := c.svc.UpdateProduct(ctx.Request.Context(), id, &req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": product})
}

// Delete 删除商品
// DELETE /api/admin/products/:id
func (c *ProductController) Delete(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}

	if err := c.svc.DeleteProduct(ctx.Request.Context(), id); err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "đã xóa sản phẩm"})
}
