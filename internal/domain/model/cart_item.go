package model

import "time"

// カートの明細。
// 価格は持たない。表示も注文確定も、その時点の商品価格を読む
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID    int64     `gorm:"not null;index;uniqueIndex:uq_cart_product" json:"cart_id"`
	ProductID int64     `gorm:"not null;index;uniqueIndex:uq_cart_product" json:"product_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
