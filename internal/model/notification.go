package model

import "time"

// 通知类型
const (
	NotificationOrderStatus   = "order_status"
	NotificationOrderCreated  = "order_created"
	NotificationProductExpiry = "product_expiring"
	NotificationCommission    = "commission"
	NotificationPaymentProof  = "payment_proof"
	NotificationAffiliate     = "affiliate"
)

// Notification 站内通知，Email 非空时由邮件任务投递
type Notification struct {
	BaseModel
	ProfileID *int64 `gorm:"index" json:"profile_id,omitempty"`
	OrderID   *int64 `gorm:"index" json:"order_id,omitempty"`
	Type      string `gorm:"size:32;index" json:"type"`
	Title     string `gorm:"size:255" json:"title"`
	Message   string `gorm:"type:text" json:"message"`
	Link      string `gorm:"size:512" json:"link,omitempty"`
	IsRead    bool   `gorm:"default:false" json:"is_read"`

	// 邮件投递
	Email         string     `gorm:"size:255" json:"email,omitempty"`
	EmailSentAt   *time.Time `gorm:"index" json:"email_sent_at,omitempty"`
	EmailError    string     `gorm:"size:1024" json:"email_error,omitempty"`
	EmailAttempts int        `gorm:"default:0" json:"email_attempts"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at,omitempty"` // 失败后的下次重试时间
}

func (Notification) TableName() string {
	return "notifications"
}

// NeedsEmail 是否待发送邮件
func (n *Notification) NeedsEmail() bool {
	return n.Email != "" && n.EmailSentAt == nil
}
