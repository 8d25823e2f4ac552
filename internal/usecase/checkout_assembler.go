package usecase

import (
	"strings"
	"time"

	"app/internal/domain/model"

	"github.com/shopspring/decimal"
)

// placeOrderに渡す配送先
type ShippingAddressInput struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// 在庫減算の指示（商品とその数量）
type stockDecrement struct {
	ProductID int64
	Qty       int64
}

// 検証・値付け済みの書き込みセット。
// Executorがこれを1トランザクションで適用する。ここでは何も永続化しない
type checkoutWriteSet struct {
	CartID     int64
	Order      model.Order
	Items      []model.OrderItem
	Decrements []stockDecrement
}

// validateShippingAddress は必須項目が全部埋まっているか確認する。
// 空の項目はデフォルト値で埋めたりせず、必ずエラーにする
func validateShippingAddress(in ShippingAddressInput) error {
	fields := []struct {
		name  string
		value string
	}{
		{"street", in.Street},
		{"city", in.City},
		{"state", in.State},
		{"postal_code", in.PostalCode},
		{"country", in.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidShippingAddressError{Field: f.name}
		}
	}
	return nil
}

// assembleCheckout はカートのスナップショットを検証して書き込みセットを作る。
// 純粋な計算だけで、副作用なし。
//
//  1. 空なら ErrEmptyCart（配送先より先に判定する。空カートは常に ErrEmptyCart）
//  2. 配送先の必須項目チェック
//  3. 非公開商品の明細は除外。全部除外されたら ErrNoValidItems
//  4. 在庫の事前チェック（先出しの早期リターン。確定はExecutorの条件付き減算が行う）
//  5. 明細合計と注文合計はdecimalで計算（floatの丸め誤差を入れない）
//  6. 注文ヘッダ＋明細＋在庫減算＋カートクリアの書き込みセットを返す
func assembleCheckout(
	cartID int64,
	lines []cartSnapshotLine,
	userID int64,
	addr ShippingAddressInput,
	paymentRef string,
	now time.Time,
) (checkoutWriteSet, error) {
	if len(lines) == 0 {
		return checkoutWriteSet{}, ErrEmptyCart
	}

	if err := validateShippingAddress(addr); err != nil {
		return checkoutWriteSet{}, err
	}

	//非公開・削除済み商品を除外
	valid := make([]cartSnapshotLine, 0, len(lines))
	for _, l := range lines {
		if l.Product.ID == 0 || !l.Product.IsActive {
			continue
		}
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return checkoutWriteSet{}, ErrNoValidItems
	}

	//在庫の事前チェック
	for _, l := range valid {
		if l.Item.Quantity > l.Product.Stock {
			return checkoutWriteSet{}, &InsufficientStockError{
				ProductID: l.Product.ID,
				Requested: l.Item.Quantity,
				Available: l.Product.Stock,
			}
		}
	}

	//スナップショット価格で値付け
	items := make([]model.OrderItem, 0, len(valid))
	decrements := make([]stockDecrement, 0, len(valid))
	total := decimal.Zero

	for _, l := range valid {
		qty := decimal.NewFromInt(l.Item.Quantity)
		lineTotal := l.Product.Price.Mul(qty)
		total = total.Add(lineTotal)

		items = append(items, model.OrderItem{
			ProductID:           l.Product.ID,
			ProductNameSnapshot: l.Product.Name,
			UnitPriceSnapshot:   l.Product.Price,
			Quantity:            l.Item.Quantity,
			CreatedAt:           now,
		})
		decrements = append(decrements, stockDecrement{
			ProductID: l.Product.ID,
			Qty:       l.Item.Quantity,
		})
	}

	order := model.Order{
		UserID:     userID,
		Status:     model.OrderStatusPending,
		TotalPrice: total,
		Shipping: model.ShippingAddress{
			Street:     strings.TrimSpace(addr.Street),
			City:       strings.TrimSpace(addr.City),
			State:      strings.TrimSpace(addr.State),
			PostalCode: strings.TrimSpace(addr.PostalCode),
			Country:    strings.TrimSpace(addr.Country),
		},
		PaymentRef: strings.TrimSpace(paymentRef),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return checkoutWriteSet{
		CartID:     cartID,
		Order:      order,
		Items:      items,
		Decrements: decrements,
	}, nil
}
