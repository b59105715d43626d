package dto

import "time"

// ==================== 请求 DTO ====================

// ListProductsRequest 商品列表请求
type ListProductsRequest struct {
	Category string `form:"category"`
	Keyword  string `form:"keyword"`
	Status   string `form:"status"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
}

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	Slug              string     `json:"slug" binding:"required,max=191"`
	Name              string     `json:"name" binding:"required,max=255"`
	Description       string     `json:"description"`
	Category          string     `json:"category" binding:"omitempty,max=64"`
	Price             int64      `json:"price" binding:"required,gt=0"`
	OriginalPrice     int64      `json:"original_price" binding:"omitempty,gte=0"`
	Images            []string   `json:"images"`
	Variants          []string   `json:"variants"`
	Status            string     `json:"status" binding:"omitempty,oneof=active hidden closed"`
	IsPreorder        *bool      `json:"is_preorder"`
	OrderDeadline     *time.Time `json:"order_deadline"`
	EstimatedDelivery string     `json:"estimated_delivery" binding:"omitempty,max=64"`
	SortOrder         int        `json:"sort_order"`
}

// UpdateProductRequest 更新商品请求，nil 字段不修改
type UpdateProductRequest struct {
	Name              *string    `json:"name" binding:"omitempty,max=255"`
	Description       *string    `json:"description"`
	Category          *string    `json:"category" binding:"omitempty,max=64"`
	Price             *int64     `json:"price" binding:"omitempty,gt=0"`
	OriginalPrice     *int64     `json:"original_price" binding:"omitempty,gte=0"`
	Images            []string   `json:"images"`
	Variants          []string   `json:"variants"`
	Status            *string    `json:"status" binding:"omitempty,oneof=active hidden closed"`
	IsPreorder        *bool      `json:"is_preorder"`
	OrderDeadline     *time.Time `json:"order_deadline"`
	ClearDeadline     bool       `json:"clear_deadline"`
	EstimatedDelivery *string    `json:"estimated_delivery" binding:"omitempty,max=64"`
	SortOrder         *int       `json:"sort_order"`
}

// ==================== 响应 DTO ====================

// ProductListResponse 商品列表响应
type ProductListResponse struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	List     interface{} `json:"list"`
}

// ExpiringProduct 即将截止的商品
type ExpiringProduct struct {
	ID            int64     `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	OrderDeadline time.Time `json:"order_deadline"`
}

// ExpiringCheckResult 截止检查结果
type ExpiringCheckResult struct {
	ExpiringSoon []ExpiringProduct `json:"expiring_soon"`
	Closed       []string          `json:"closed"`
	Errors       []string          `json:"errors"`
}
