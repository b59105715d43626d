package dto

import (
	"github.com/shopspring/decimal"
)

// RegisterAffiliateRequest 推广员申请
type RegisterAffiliateRequest struct {
	SocialLink  string `json:"social_link" binding:"required"`
	BankName    string `json:"bank_name" binding:"required,max=128"`
	BankAccount string `json:"bank_account" binding:"required,max=64"`
	BankHolder  string `json:"bank_holder" binding:"required,max=128"`
}

// UpdateAffiliateStatusRequest 管理员审核
type UpdateAffiliateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended"`
}

// ListAffiliatesRequest 推广员列表
type ListAffiliatesRequest struct {
	Status   string `form:"status"`
	Keyword  string `form:"keyword"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
}

// MonthStats 月度统计
type MonthStats struct {
	Month      string          `json:"month"`
	OrderCount int64           `json:"order_count"`
	Revenue    int64           `json:"revenue"`
	Rate       decimal.Decimal `json:"rate"`
	Commission int64           `json:"commission"`
}

// NextTier 距下一档的差距
type NextTier struct {
	Rate           decimal.Decimal `json:"rate"`
	OrdersRequired int64           `json:"orders_required"`
}

// AffiliateDashboard 推广员面板
type AffiliateDashboard struct {
	Affiliate    interface{} `json:"affiliate"`
	ReferralLink string      `json:"referral_link"`
	CurrentMonth MonthStats  `json:"current_month"`
	NextTier     *NextTier   `json:"next_tier,omitempty"`
	History      interface{} `json:"history"`
}

// RecalculateCommissionsRequest 佣金重算
type RecalculateCommissionsRequest struct {
	Month string `json:"month"` // 2006-01，空为当月
}

// RecalculateResult 佣金重算结果
type RecalculateResult struct {
	Month     string   `json:"month"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"` // 已结算月份
	Errors    []string `json:"errors"`
}
