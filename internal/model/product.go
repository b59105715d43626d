package model

import (
	"time"

	"gorm.io/datatypes"
)

// ==================== 商品状态常量 ====================

const (
	ProductStatusActive = "active" // 上架
	ProductStatusHidden = "hidden" // 隐藏
	ProductStatusClosed = "closed" // 预售截止
)

// Product 预售商品
type Product struct {
	BaseModel

	// --- 基本信息 ---
	Slug        string `gorm:"size:191;uniqueIndex;not null" json:"slug"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"size:64;index" json:"category"`

	// --- 价格（VND，整数） ---
	Price         int64 `gorm:"not null;default:0" json:"price"`
	OriginalPrice int64 `gorm:"default:0" json:"original_price"`

	// --- 图片与规格（JSON 数组，PG 为 jsonb） ---
	Images   datatypes.JSONSlice[string] `json:"images"`
	Variants datatypes.JSONSlice[string] `json:"variants"`

	// --- 预售 ---
	Status            string     `gorm:"size:16;index;default:active" json:"status"`
	IsPreorder        bool       `json:"is_preorder"`
	OrderDeadline     *time.Time `gorm:"index" json:"order_deadline,omitempty"`
	EstimatedDelivery string     `gorm:"size:64" json:"estimated_delivery,omitempty"`
	ExpiryNotifiedAt  *time.Time `json:"-"` // 截止提醒已发送

	SortOrder int `gorm:"default:0" json:"sort_order"`
}

func (Product) TableName() string {
	return "products"
}

// IsOrderable 是否可下单：上架且未过截止时间
func (p *Product) IsOrderable(now time.Time) bool {
	if p.Status != ProductStatusActive {
		return false
	}
	return p.OrderDeadline == nil || p.OrderDeadline.After(now)
}

// HasVariant 检查规格是否存在；无规格商品只接受空规格
func (p *Product) HasVariant(variant string) bool {
	if len(p.Variants) == 0 {
		return variant == ""
	}
	for _, v := range p.Variants {
		if v == variant {
			return true
		}
	}
	return false
}

// CoverImage 封面图
func (p *Product) CoverImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
