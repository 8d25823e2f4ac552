package model

import "time"

// 住所帳の1件。注文フォームの入力補助用で、注文自体は住所を埋め込みで持つ
type Address struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`

	Street     string `gorm:"type:varchar(255);not null" json:"street"`
	City       string `gorm:"type:varchar(255);not null" json:"city"`
	State      string `gorm:"type:varchar(100);not null" json:"state"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`
	Country    string `gorm:"type:varchar(100);not null" json:"country"`

	//宛名
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	//電話番号
	Phone string `gorm:"type:varchar(30)" json:"phone"`

	//このユーザーのデフォルト住所か
	IsDefault bool `gorm:"not null;default:false" json:"is_default"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
