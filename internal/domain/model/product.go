package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	//価格は固定小数点（numeric）。floatで金額計算しない
	Price decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`

	Stock     int64          `gorm:"not null" json:"stock"`
	IsActive  bool           `gorm:"not null;default:false" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
