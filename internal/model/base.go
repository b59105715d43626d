package model

import (
	"time"

	"gorm.io/gorm"
)

type BaseModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// --- 审计字段 ---
	CreatedBy int64 `gorm:"default:0" json:"created_by"`
	UpdatedBy int64 `gorm:"default:0" json:"updated_by"`
}
