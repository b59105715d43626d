package dto

import "time"

// ==================== 购物车 ====================

// CartItem 客户端购物车行
type CartItem struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant"`
}

// QuoteCartRequest 购物车报价请求
type QuoteCartRequest struct {
	Items []CartItem `json:"items" binding:"required"`
}

// CartLine 报价后的行
type CartLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Variant   string `json:"variant,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
	ImageURL  string `json:"image_url,omitempty"`
}

// LineError 行错误
type LineError struct {
	Index     int    `json:"index"`
	ProductID int64  `json:"product_id"`
	Reason    string `json:"reason"`
}

// CartQuote 报价结果
type CartQuote struct {
	Lines       []CartLine  `json:"lines"`
	Errors      []LineError `json:"errors"`
	Subtotal    int64       `json:"subtotal"`
	ShippingFee int64       `json:"shipping_fee"`
	Total       int64       `json:"total"`
}

// ==================== 下单 ====================

// CheckoutRequest 下单请求
type CheckoutRequest struct {
	CustomerName  string     `json:"customer_name"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email"`
	Address       string     `json:"address"`
	Province      string     `json:"province"`
	Note          string     `json:"note"`
	PaymentMethod string     `json:"payment_method"`
	RefCode       string     `json:"ref_code"`
	Items         []CartItem `json:"items"`
}

// CheckoutResponse 下单响应
type CheckoutResponse struct {
	OrderNumber   string    `json:"order_number"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method"`
	Subtotal      int64     `json:"subtotal"`
	ShippingFee   int64     `json:"shipping_fee"`
	Total         int64     `json:"total"`
	CreatedAt     time.Time `json:"created_at"`
}

// ==================== 查询 ====================

// TrackOrderRequest 订单查询请求
type TrackOrderRequest struct {
	OrderNumber string `form:"order_number" binding:"required"`
	Contact     string `form:"contact" binding:"required"` // 手机号或邮箱
}

// ListOrdersRequest 订单列表请求（管理员）
type ListOrdersRequest struct {
	Status    string `form:"status"`
	Keyword   string `form:"keyword"`
	StartDate string `form:"start_date"` // 2006-01-02
	EndDate   string `form:"end_date"`
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=20"`
}

// ListOrdersResponse 订单列表响应
type ListOrdersResponse struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	List     interface{} `json:"list"`
}

// ==================== 状态 ====================

// UpdateOrderStatusRequest 更新订单状态请求
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"omitempty,max=500"`
}

// AutoCompleteResult 自动完成结果
type AutoCompleteResult struct {
	Processed int      `json:"processed"`
	Completed []string `json:"completed"`
	Errors    []string `json:"errors"`
}

// ExportOrdersRequest 导出订单请求
type ExportOrdersRequest struct {
	From string `json:"from" binding:"required"` // 2006-01-02
	To   string `json:"to" binding:"required"`
}

// ExportOrdersResult 导出结果
type ExportOrdersResult struct {
	Total  int      `json:"total"`
	Pushed int      `json:"pushed"`
	Errors []string `json:"errors"`
}
