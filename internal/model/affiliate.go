package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 推广员（CTV）状态
const (
	AffiliateStatusPending   = "pending"
	AffiliateStatusActive    = "active"
	AffiliateStatusSuspended = "suspended"
)

// 佣金结算状态
const (
	CommissionStatusPending = "pending"
	CommissionStatusPaid    = "paid"
)

// Affiliate 推广员
type Affiliate struct {
	BaseModel
	ProfileID int64  `gorm:"uniqueIndex;not null" json:"profile_id"`
	RefCode   string `gorm:"size:32;uniqueIndex;not null" json:"ref_code"`

	SocialLink  string `gorm:"size:512" json:"social_link"`
	BankName    string `gorm:"size:128" json:"bank_name"`
	BankAccount string `gorm:"size:64" json:"bank_account"`
	BankHolder  string `gorm:"size:128" json:"bank_holder"`

	Status         string          `gorm:"size:16;index;default:pending" json:"status"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,4)" json:"commission_rate"`

	Profile *Profile `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}

// AffiliateCommission 按月汇总的佣金
type AffiliateCommission struct {
	BaseModel
	AffiliateID  int64           `gorm:"uniqueIndex:idx_affiliate_month;not null" json:"affiliate_id"`
	Month        string          `gorm:"size:7;uniqueIndex:idx_affiliate_month;not null" json:"month"` // 2006-01
	OrderCount   int             `json:"order_count"`
	Revenue      int64           `json:"revenue"`
	Rate         decimal.Decimal `gorm:"type:decimal(5,4)" json:"rate"`
	Amount       int64           `json:"amount"`
	Status       string          `gorm:"size:16;default:pending" json:"status"`
	CalculatedAt time.Time       `json:"calculated_at"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
}

func (AffiliateCommission) TableName() string {
	return "affiliate_commissions"
}
