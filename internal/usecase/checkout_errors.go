package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// 注文確定の業務エラー。リトライしても結果は変わらない（terminal）
var (
	//カートが空（確定するものがない）
	ErrEmptyCart = errors.New("cart empty")

	//カートの中身が全部無効（非公開商品だけ）
	ErrNoValidItems = errors.New("no valid items")
)

// 在庫不足。どの商品が、いくつ要求されて、いくつ残っていたかを持つ
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product=%d requested=%d available=%d",
		e.ProductID, e.Requested, e.Available)
}

// 配送先の必須項目が空
type InvalidShippingAddressError struct {
	Field string
}

func (e *InvalidShippingAddressError) Error() string {
	return fmt.Sprintf("invalid shipping address: %s required", e.Field)
}

// IsCheckoutError は注文確定の業務エラーかどうかを返す。
// これらはHandlerがユーザー向けメッセージに変換する
func IsCheckoutError(err error) bool {
	var stockErr *InsufficientStockError
	var addrErr *InvalidShippingAddressError
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrNoValidItems) ||
		errors.As(err, &stockErr) ||
		errors.As(err, &addrErr)
}

// 一時的なDB障害かどうか。
// serialization_failure(40001) / deadlock_detected(40P01) と
// 接続系(class 08)は、新しいスナップショットで再試行してよい
func isTransientDBError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return true
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
	}

	return false
}
