package dto

// 邮件类型
const (
	EmailTypeOrderConfirmation = "order_confirmation"
	EmailTypeStatusUpdate      = "status_update"
	EmailTypePaymentConfirmed  = "payment_confirmed"
)

// EmailItem 邮件中的商品行
type EmailItem struct {
	Name     string `json:"name"`
	Variant  string `json:"variant,omitempty"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// SendOrderEmailRequest 订单邮件请求
type SendOrderEmailRequest struct {
	Email        string      `json:"email" binding:"required,email"`
	OrderNumber  string      `json:"order_number" binding:"required"`
	CustomerName string      `json:"customer_name"`
	Items        []EmailItem `json:"items"`
	Total        int64       `json:"total"`
	Type         string      `json:"type" binding:"required,oneof=order_confirmation status_update payment_confirmed"`
	Status       string      `json:"status"`
}

// DispatchResult 通知邮件投递结果
type DispatchResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}
