package model

import "time"

// 角色
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Profile 用户档案（顾客 / 推广员 / 管理员）
type Profile struct {
	BaseModel
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FullName     string     `gorm:"size:128" json:"full_name"`
	Phone        string     `gorm:"size:20" json:"phone"`
	Address      string     `gorm:"type:text" json:"address"`
	Role         string     `gorm:"size:20;default:customer" json:"role"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

func (Profile) TableName() string {
	return "profiles"
}

// IsAdmin 是否管理员
func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}
