package model

import (
	"time"
)

// ==================== 订单状态常量 ====================

const (
	OrderStatusPendingPayment = "pending_payment" // 待付款
	OrderStatusPaid           = "paid"            // 已付款
	OrderStatusOrdered        = "ordered"         // 已向供应商下单
	OrderStatusShipping       = "shipping"        // 配送中
	OrderStatusCompleted      = "completed"       // 已完成
	OrderStatusCancelled      = "cancelled"       // 已取消
)

// 支付方式
const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCOD          = "cod"
)

// orderTransitions 允许的状态流转
var orderTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusOrdered, OrderStatusCancelled},
	OrderStatusOrdered:        {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:       {OrderStatusCompleted},
}

// CanTransition 检查状态是否可以从 from 流转到 to
func CanTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsValidOrderStatus 是否为已知状态
func IsValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusOrdered,
		OrderStatusShipping, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// ==================== Order 订单主表 ====================

// Order 订单
type Order struct {
	BaseModel
	OrderNumber string `gorm:"size:32;uniqueIndex;not null" json:"order_number"`
	ProfileID   *int64 `gorm:"index" json:"profile_id,omitempty"`

	// 收货信息
	CustomerName string `gorm:"size:128;not null" json:"customer_name"`
	Phone        string `gorm:"size:20;index;not null" json:"phone"`
	Email        string `gorm:"size:255;index" json:"email"`
	Address      string `gorm:"type:text" json:"address"`
	Province     string `gorm:"size:64" json:"province"`
	Note         string `gorm:"type:text" json:"note,omitempty"`

	// 金额（VND）
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shipping_fee"`
	Total       int64 `gorm:"index" json:"total"`

	PaymentMethod string `gorm:"size:16;default:bank_transfer" json:"payment_method"`
	Status        string `gorm:"size:32;index;default:pending_payment" json:"status"`

	// 推广归因
	RefCode     string `gorm:"size:32;index" json:"ref_code,omitempty"`
	AffiliateID *int64 `gorm:"index" json:"affiliate_id,omitempty"`

	// 付款凭证
	PaymentProofURL   string     `gorm:"size:512" json:"payment_proof_url,omitempty"`
	PaymentVerifiedAt *time.Time `json:"payment_verified_at,omitempty"`

	// 关联
	Items     []OrderItem          `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Histories []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"histories,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// CanCancel 检查是否可以取消
func (o *Order) CanCancel() bool {
	return CanTransition(o.Status, OrderStatusCancelled)
}

// ==================== OrderItem 订单项 ====================

// OrderItem 下单时的商品快照
type OrderItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64     `gorm:"index;not null" json:"order_id"`
	ProductID   int64     `gorm:"index" json:"product_id"`
	ProductName string    `gorm:"size:255" json:"product_name"`
	Variant     string    `gorm:"size:128" json:"variant,omitempty"`
	UnitPrice   int64     `json:"unit_price"`
	Quantity    int       `gorm:"default:1" json:"quantity"`
	ImageURL    string    `gorm:"size:512" json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// LineTotal 小计
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ==================== OrderStatusHistory 状态历史 ====================

// OrderStatusHistory 订单状态变更记录
type OrderStatusHistory struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64     `gorm:"index;not null" json:"order_id"`
	FromStatus string    `gorm:"size:32" json:"from_status"`
	ToStatus   string    `gorm:"size:32;index" json:"to_status"`
	ChangedBy  int64     `gorm:"default:0" json:"changed_by"` // 0 表示系统
	Note       string    `gorm:"size:500" json:"note,omitempty"`
	ChangedAt  time.Time `gorm:"index" json:"changed_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_histories"
}
