package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusShipped  OrderStatus = "SHIPPED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// 注文確定時点の配送先。注文に埋め込んで保存する（住所帳の後の編集に影響されない）
type ShippingAddress struct {
	Street     string `gorm:"type:varchar(255);not null" json:"street"`
	City       string `gorm:"type:varchar(255);not null" json:"city"`
	State      string `gorm:"type:varchar(100);not null" json:"state"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`
	Country    string `gorm:"type:varchar(100);not null" json:"country"`
}

type Order struct {
	ID     int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64       `gorm:"not null;index" json:"user_id"`
	Status OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	//確定後は不変
	TotalPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`

	Shipping ShippingAddress `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`

	//決済参照（外部の決済システムの識別子）。そのまま保存するだけ
	PaymentRef string `gorm:"type:varchar(255)" json:"payment_ref,omitempty"`

	//二重送信防止キー。未指定ならNULL（NULL同士はuniqueに引っかからない）
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
